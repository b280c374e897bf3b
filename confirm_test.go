package main

import (
	"strings"
	"testing"
)

func TestConfirmationRoundTrip(t *testing.T) {
	pending := PendingAction{
		Intent: IntentCloseItem,
		Action: "close_issue",
		Payload: map[string]string{
			"issueId":     "42",
			"deliveryUrl": "https://x/y",
			"command":     `issue close 42 --comment "Delivered: https://x/y"`,
		},
	}

	token, err := EncodeConfirmation(pending)
	if err != nil {
		t.Fatalf("EncodeConfirmation failed: %v", err)
	}
	if !strings.HasPrefix(token, confirmPrefix) {
		t.Fatalf("token missing prefix: %q", token)
	}
	if !IsConfirmation(token) {
		t.Fatal("IsConfirmation must accept an encoded token")
	}

	got, err := DecodeConfirmation(token)
	if err != nil {
		t.Fatalf("DecodeConfirmation failed: %v", err)
	}
	if got.Intent != pending.Intent || got.Action != pending.Action {
		t.Fatalf("decoded (%s, %s), want (%s, %s)", got.Intent, got.Action, pending.Intent, pending.Action)
	}
	for k, v := range pending.Payload {
		if got.Payload[k] != v {
			t.Fatalf("payload[%s] = %q, want %q", k, got.Payload[k], v)
		}
	}
}

func TestDecodeConfirmationRejects(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"no prefix", `{"v":1,"intent":"close_item"}`},
		{"truncated json", confirmPrefix + `{"v":1,"intent":`},
		{"wrong version", confirmPrefix + `{"v":9,"intent":"close_item","action":"close_issue"}`},
		{"unknown intent", confirmPrefix + `{"v":1,"intent":"drop_tables","action":"x"}`},
		{"empty body", confirmPrefix},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeConfirmation(tc.token); err == nil {
				t.Fatalf("DecodeConfirmation(%q) must fail", tc.token)
			}
		})
	}
}

func TestIsCancellation(t *testing.T) {
	if !IsCancellation("cancel_action") || !IsCancellation("  cancel_action \n") {
		t.Fatal("cancel marker not recognized")
	}
	if IsCancellation("cancel_action_extra") || IsCancellation("please cancel_action") {
		t.Fatal("cancel marker must match the whole message")
	}
}
