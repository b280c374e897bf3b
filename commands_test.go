package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCommandTableMatch(t *testing.T) {
	table := NewCommandTable()

	tests := []struct {
		raw       string
		intent    Intent
		remainder string
		ok        bool
	}{
		{"/create fix the login flow", IntentCreateItem, "fix the login flow", true},
		{"/new onboarding doc", IntentCreateItem, "onboarding doc", true},
		{"/list", IntentListItems, "", true},
		{"/LIST", IntentListItems, "", true},
		{"/close 42 https://x/y", IntentCloseItem, "42 https://x/y", true},
		{"/总结#12", IntentSummarizeItem, "#12", true},
		{"/帮助", IntentHelp, "", true},
		{"  /help  ", IntentHelp, "", true},
		{"/summarized yesterday", "", "", false},
		{"/unknowncmd foo", "", "", false},
		{"not a command", "", "", false},
		{"", "", "", false},
	}

	for _, tc := range tests {
		intent, remainder, ok := table.Match(tc.raw)
		if ok != tc.ok || intent != tc.intent || remainder != tc.remainder {
			t.Fatalf("Match(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.raw, intent, remainder, ok, tc.intent, tc.remainder, tc.ok)
		}
	}
}

func TestCommandAliasOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	content := "aliases:\n  - token: /issue\n    intent: create_item\n  - token: /标签\n    intent: list_items\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write aliases: %v", err)
	}

	aliases, err := LoadCommandAliases(path)
	if err != nil {
		t.Fatalf("LoadCommandAliases failed: %v", err)
	}

	table := NewCommandTable()
	table.ApplyAliases(aliases)

	if intent, rest, ok := table.Match("/issue broken build"); !ok || intent != IntentCreateItem || rest != "broken build" {
		t.Fatalf("alias match = (%q, %q, %v)", intent, rest, ok)
	}
	if intent, _, ok := table.Match("/标签"); !ok || intent != IntentListItems {
		t.Fatalf("cjk alias match = (%q, %v)", intent, ok)
	}
	// Defaults survive the overlay.
	if intent, _, ok := table.Match("/create x"); !ok || intent != IntentCreateItem {
		t.Fatalf("default lost after overlay: (%q, %v)", intent, ok)
	}
}

func TestLoadCommandAliasesRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()

	badIntent := filepath.Join(dir, "bad_intent.yaml")
	os.WriteFile(badIntent, []byte("aliases:\n  - token: /x\n    intent: no_such_intent\n"), 0644)
	if _, err := LoadCommandAliases(badIntent); err == nil {
		t.Fatal("expected error for unknown intent")
	}

	badToken := filepath.Join(dir, "bad_token.yaml")
	os.WriteFile(badToken, []byte("aliases:\n  - token: issue\n    intent: create_item\n"), 0644)
	if _, err := LoadCommandAliases(badToken); err == nil {
		t.Fatal("expected error for token without slash")
	}

	if _, err := LoadCommandAliases(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
