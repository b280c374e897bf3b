package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// CommandTable maps explicit command tokens to intents. Tokens are matched
// case-insensitively at the start of the message; ASCII and CJK aliases map
// to the same intent. An unrecognized "/token" is not an error here — it
// falls through to the later classifier stages.
type CommandTable struct {
	entries map[string]Intent
	// tokens sorted longest-first so "/report-stats"-style long aliases win
	// over shorter prefixes.
	ordered []string
}

var defaultCommands = map[string]Intent{
	"/create":    IntentCreateItem,
	"/new":       IntentCreateItem,
	"/创建":        IntentCreateItem,
	"/list":      IntentListItems,
	"/ls":        IntentListItems,
	"/列表":        IntentListItems,
	"/close":     IntentCloseItem,
	"/done":      IntentCloseItem,
	"/关闭":        IntentCloseItem,
	"/mine":      IntentAssignSelf,
	"/claim":     IntentAssignSelf,
	"/认领":        IntentAssignSelf,
	"/link":      IntentLinkExisting,
	"/关联":        IntentLinkExisting,
	"/summarize": IntentSummarizeItem,
	"/sum":       IntentSummarizeItem,
	"/总结":        IntentSummarizeItem,
	"/history":   IntentSearchHistory,
	"/search":    IntentSearchHistory,
	"/历史":        IntentSearchHistory,
	"/doc":       IntentReadDocument,
	"/read":      IntentReadDocument,
	"/文档":        IntentReadDocument,
	"/update":    IntentUpdateLinkedItem,
	"/append":    IntentUpdateLinkedItem,
	"/更新":        IntentUpdateLinkedItem,
	"/feedback":  IntentCollectFeedback,
	"/反馈":        IntentCollectFeedback,
	"/review":    IntentReviewChanges,
	"/评审":        IntentReviewChanges,
	"/help":      IntentHelp,
	"/帮助":        IntentHelp,
}

func NewCommandTable() *CommandTable {
	t := &CommandTable{entries: make(map[string]Intent, len(defaultCommands))}
	for token, intent := range defaultCommands {
		t.entries[strings.ToLower(token)] = intent
	}
	t.reindex()
	return t
}

func (t *CommandTable) reindex() {
	t.ordered = t.ordered[:0]
	for token := range t.entries {
		t.ordered = append(t.ordered, token)
	}
	sort.Slice(t.ordered, func(i, j int) bool {
		if len(t.ordered[i]) != len(t.ordered[j]) {
			return len(t.ordered[i]) > len(t.ordered[j])
		}
		return t.ordered[i] < t.ordered[j]
	})
}

// Match reports whether raw starts with a known command token and returns the
// mapped intent plus the trimmed remainder after the token. CJK tokens may be
// followed directly by text with no space ("/总结#12").
func (t *CommandTable) Match(raw string) (Intent, string, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	lower := strings.ToLower(trimmed)
	for _, token := range t.ordered {
		if !strings.HasPrefix(lower, token) {
			continue
		}
		rest := trimmed[len(token):]
		if rest != "" && !tokenBoundary(token, rest) {
			continue
		}
		return t.entries[token], strings.TrimSpace(rest), true
	}
	return "", "", false
}

// tokenBoundary keeps "/summarize" from matching inside "/summarized".
// ASCII tokens require whitespace after the token; CJK tokens do not.
func tokenBoundary(token, rest string) bool {
	r := []rune(rest)[0]
	if unicode.IsSpace(r) {
		return true
	}
	last := []rune(token)[len([]rune(token))-1]
	return last > unicode.MaxASCII
}

// intentsNeedingNumber lists command intents whose remainder should carry a
// numeric item reference. Absence of the number is a valid outcome the
// handler reports as a user error.
var intentsNeedingNumber = map[Intent]bool{
	IntentCloseItem:     true,
	IntentSummarizeItem: true,
	IntentLinkExisting:  true,
	IntentAssignSelf:    true,
}

// commandAliasFile is an optional YAML overlay adding extra tokens, e.g.
// team-local shorthands. Unknown intents are rejected at load time.
type commandAliasFile struct {
	Aliases []commandAlias `yaml:"aliases"`
}

type commandAlias struct {
	Token  string `yaml:"token"`
	Intent string `yaml:"intent"`
}

func LoadCommandAliases(path string) (*commandAliasFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command aliases: %w", err)
	}
	var f commandAliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse command aliases yaml: %w", err)
	}
	for _, a := range f.Aliases {
		if !strings.HasPrefix(a.Token, "/") {
			return nil, fmt.Errorf("alias token %q must start with '/'", a.Token)
		}
		if !knownIntents[Intent(a.Intent)] {
			return nil, fmt.Errorf("alias %q maps to unknown intent %q", a.Token, a.Intent)
		}
	}
	return &f, nil
}

func (t *CommandTable) ApplyAliases(f *commandAliasFile) {
	if f == nil {
		return
	}
	for _, a := range f.Aliases {
		token := strings.ToLower(strings.TrimSpace(a.Token))
		if token == "" {
			continue
		}
		if existing, ok := t.entries[token]; ok && existing != Intent(a.Intent) {
			log.Printf("command alias override token=%s old=%s new=%s", token, existing, a.Intent)
		}
		t.entries[token] = Intent(a.Intent)
	}
	t.reindex()
}
