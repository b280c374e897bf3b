package main

import (
	"context"
	"log"
	"regexp"
	"strings"
)

// TextCompleter is the injected text-completion capability. Tests substitute
// a deterministic stub; production wires the Anthropic or OpenAI client.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
}

// Classifier resolves raw chat input into an (intent, params) pair through a
// fixed cascade. The stage order is a correctness invariant: deterministic
// matches always win over the probabilistic LLM fallback.
//
//	1. confirm/cancel token detection
//	2. explicit command-token match
//	3. linkage-dependent keyword rules
//	4. linkage-independent relational rules
//	5. LLM free-text fallback
//
// Classify never returns an error; on any internal failure the result is
// general_chat, which the router turns into the skip signal.
type Classifier struct {
	commands  *CommandTable
	completer TextCompleter
}

func NewClassifier(commands *CommandTable, completer TextCompleter) *Classifier {
	return &Classifier{commands: commands, completer: completer}
}

// Linkage-dependent rules: the same text without a linked reference falls
// through to the later stages.
var (
	appendInfoRegex = regexp.MustCompile(`(?i)^\s*(?:btw|also|additionally|in addition|additional info|more context|补充|追加|另外|还有)[::,\s]`)
	assignSelfRegex = regexp.MustCompile(`(?i)(assign\s+(?:it\s+|this\s+)?to\s+me|i(?:'|’| wi)ll take (?:it|this)|我来(?:做|处理|跟进)?|我认领|分给我|派给我)`)
)

// Linkage-independent relational rules, cheaper and more precise than the
// LLM for these exact shapes.
var (
	linkToRegex    = regexp.MustCompile(`(?i)\blink(?:\s+(?:to|with))?\s+#?(\d+)`)
	linkToCJKRegex = regexp.MustCompile(`关联\s*#?(\d+)`)
	sumOfRegex     = regexp.MustCompile(`(?i)\bsummar(?:y|ize|ise)\s+(?:of\s+)?#?(\d+)`)
	sumOfCJKRegex  = regexp.MustCompile(`总结\s*#?(\d+)`)
	closeNRegex    = regexp.MustCompile(`(?i)\bclose\s+#?(\d+)`)
	closeNCJKRegex = regexp.MustCompile(`关闭\s*#?(\d+)`)
	createRegex    = regexp.MustCompile(`(?i)^\s*(?:create|new|open)\s+(?:an?\s+)?(?:issue|item|task|ticket)[::]?\s*`)
	createCJKRegex = regexp.MustCompile(`^\s*(?:创建|新建)(?:任务|工单|问题)?[::]?\s*`)
)

func (c *Classifier) Classify(ctx context.Context, rawQuery string, conv ConversationContext) ClassificationResult {
	res := ClassificationResult{
		Intent:   IntentGeneralChat,
		Params:   make(map[string]string),
		RawQuery: rawQuery,
	}
	trimmed := strings.TrimSpace(rawQuery)
	if trimmed == "" {
		return res
	}

	// Stage 1: confirmation tokens bypass everything. A token's content must
	// never be re-classified, whatever text the payload happens to contain.
	if IsCancellation(trimmed) {
		res.Intent = IntentCreateItem
		res.Params[paramCancel] = "true"
		log.Printf("classify stage=confirm cancel=true")
		return res
	}
	if IsConfirmation(trimmed) {
		pending, err := DecodeConfirmation(trimmed)
		if err != nil {
			// Corrupt token: route to the default confirmation flow, whose
			// replay branch reports the parse failure to the user.
			log.Printf("classify stage=confirm corrupt payload: %v", err)
			res.Intent = IntentCreateItem
			return res
		}
		res.Intent = pending.Intent
		log.Printf("classify stage=confirm intent=%s action=%s", pending.Intent, pending.Action)
		return res
	}

	// Stage 2: explicit command syntax.
	if intent, remainder, ok := c.commands.Match(trimmed); ok {
		res.Intent = intent
		res.Params[paramRemainder] = remainder
		if intent == IntentHelp {
			res.Intent = IntentGeneralChat
			res.Params[paramHelp] = "true"
		}
		if intentsNeedingNumber[intent] {
			if n, found := ExtractIssueNumber(remainder); found {
				res.Params[paramIssueID] = n
			}
		}
		if intent == IntentReadDocument {
			if u, found := ExtractDocURL(remainder); found {
				res.Params[paramDocURL] = u
			}
		}
		log.Printf("classify stage=command intent=%s", res.Intent)
		return res
	}

	// Stage 3: context-sensitive rules, only meaningful with a linked item.
	if conv.LinkedRef != nil {
		if appendInfoRegex.MatchString(trimmed) {
			res.Intent = IntentUpdateLinkedItem
			res.Params[paramRemainder] = trimmed
			res.Params[paramIssueID] = conv.LinkedRef.ExternalID
			log.Printf("classify stage=context intent=%s issue=%s", res.Intent, conv.LinkedRef.ExternalID)
			return res
		}
		if assignSelfRegex.MatchString(trimmed) {
			res.Intent = IntentAssignSelf
			res.Params[paramIssueID] = conv.LinkedRef.ExternalID
			log.Printf("classify stage=context intent=%s issue=%s", res.Intent, conv.LinkedRef.ExternalID)
			return res
		}
	}

	// Stage 4: relational keyword rules, linkage-independent.
	if intent, issueID, ok := matchRelationalRules(trimmed); ok {
		res.Intent = intent
		res.Params[paramRemainder] = trimmed
		if issueID != "" {
			res.Params[paramIssueID] = issueID
		}
		log.Printf("classify stage=relational intent=%s issue=%s", intent, issueID)
		return res
	}

	// Stage 5: LLM fallback, temperature zero. Any failure or non-matching
	// answer degrades to general_chat for the caller's fallback agent.
	intent := c.classifyWithLLM(ctx, trimmed)
	res.Intent = intent
	res.Params[paramRemainder] = trimmed
	log.Printf("classify stage=llm intent=%s", intent)
	return res
}

func matchRelationalRules(text string) (Intent, string, bool) {
	for _, rule := range []struct {
		re     *regexp.Regexp
		intent Intent
	}{
		{linkToRegex, IntentLinkExisting},
		{linkToCJKRegex, IntentLinkExisting},
		{sumOfRegex, IntentSummarizeItem},
		{sumOfCJKRegex, IntentSummarizeItem},
		{closeNRegex, IntentCloseItem},
		{closeNCJKRegex, IntentCloseItem},
	} {
		if m := rule.re.FindStringSubmatch(text); m != nil {
			return rule.intent, m[1], true
		}
	}
	if createRegex.MatchString(text) || createCJKRegex.MatchString(text) {
		return IntentCreateItem, "", true
	}
	return "", "", false
}

const intentPromptHeader = `You classify one chat message from a team work channel into exactly one intent.
Reply with the intent name only, nothing else.

Intents:
- create_item: user wants a new issue/task created
- list_items: user wants the current open items listed
- close_item: user wants an existing item closed
- assign_self: user wants to claim an item for themselves
- link_existing: user wants this thread linked to an existing item
- summarize_item: user wants a summary of an item
- search_history: user asks about earlier discussion in this chat
- read_document: user wants a document read or summarized
- update_linked_item: user adds information to the item under discussion
- collect_feedback: user wants feedback collected from teammates
- review_changes: user asks about open change requests / reviews
- help: user asks what this assistant can do
- general_chat: anything else

Message:
`

func (c *Classifier) classifyWithLLM(ctx context.Context, text string) Intent {
	if c.completer == nil {
		return IntentGeneralChat
	}
	answer, err := c.completer.Complete(ctx, intentPromptHeader+text, 0)
	if err != nil {
		log.Printf("classify llm fallback error (degrading to general_chat): %v", err)
		return IntentGeneralChat
	}
	intent := Intent(normalizeIntentToken(answer))
	if !knownIntents[intent] {
		log.Printf("classify llm answer %q not in vocabulary, defaulting", answer)
		return IntentGeneralChat
	}
	return intent
}

// normalizeIntentToken lowercases the model answer and strips everything but
// letters and underscores, so "Create_Item." still matches the vocabulary.
func normalizeIntentToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
