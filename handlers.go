package main

import (
	"context"
	"strings"
)

// replayOf decodes the confirmation token when this invocation is a
// confirmed replay. The fresh-vs-replay branch is decided by the prefix on
// the raw text, never by payload shape — a fresh request can coincidentally
// carry payload-shaped text.
func replayOf(req HandlerRequest) (PendingAction, bool, error) {
	raw := strings.TrimSpace(req.Result.RawQuery)
	if !IsConfirmation(raw) {
		return PendingAction{}, false, nil
	}
	pending, err := DecodeConfirmation(raw)
	if err != nil {
		return PendingAction{}, true, err
	}
	return pending, true, nil
}

const corruptConfirmationMsg = "Sorry, I could not process that confirmation. Please retry the original request."
const cancelledMsg = "Okay, cancelled. Nothing was changed."

// issueIDFor resolves the item reference for context-sensitive handlers:
// an explicit number in the message wins, otherwise the thread's linked
// item is used.
func issueIDFor(req HandlerRequest) string {
	if id := req.Result.Param(paramIssueID); id != "" {
		return id
	}
	if req.Conv.LinkedRef != nil {
		return req.Conv.LinkedRef.ExternalID
	}
	return ""
}

func textResult(msg string) HandlerResult {
	return HandlerResult{Response: msg}
}

// requestText returns the command remainder when the message came through
// the command table, otherwise the raw message text. The distinction
// matters for a bare command: its remainder is present but empty, and must
// not fall back to the "/command" text itself.
func requestText(req HandlerRequest) string {
	if req.Result.Params != nil {
		if text, ok := req.Result.Params[paramRemainder]; ok {
			return text
		}
	}
	return req.Result.RawQuery
}

type helpHandler struct {
	teamName string
}

func NewHelpHandler(teamName string) Handler {
	return &helpHandler{teamName: teamName}
}

func (h *helpHandler) Handle(_ context.Context, _ HandlerRequest) HandlerResult {
	team := h.teamName
	if team == "" {
		team = "the team"
	}
	var b strings.Builder
	b.WriteString("I'm the assistant for " + team + ". Commands:\n")
	b.WriteString("• `/create <summary>[, priority N][, ddl <date>]` — create a work item (asks to confirm)\n")
	b.WriteString("• `/list` — open items\n")
	b.WriteString("• `/close <#N> <delivery link>` — close an item with delivery info (asks to confirm)\n")
	b.WriteString("• `/mine [#N]` — claim an item for yourself\n")
	b.WriteString("• `/link <#N>` — link this thread to an existing item\n")
	b.WriteString("• `/summarize [#N]` — summarize an item\n")
	b.WriteString("• `/update <text>` — append info to the linked item (asks to confirm)\n")
	b.WriteString("• `/history <question>` — answer from earlier discussion here\n")
	b.WriteString("• `/doc <link>` — read and summarize a document\n")
	b.WriteString("• `/feedback @user [@user...] <topic>` — collect feedback (asks to confirm)\n")
	b.WriteString("• `/review` — open change requests\n")
	b.WriteString("• `/help` — this message\n")
	b.WriteString("\nYou can also just describe what you want; I'll work out the intent. ")
	b.WriteString("Chinese command aliases (/创建, /列表, /关闭, ...) work too.")
	return textResult(b.String())
}
