package main

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
)

var priorityRegex = regexp.MustCompile(`(?i)(?:priority|prio|优先级)\s*[::]?\s*([0-4])|\bp([0-4])\b`)
var ddlRegex = regexp.MustCompile(`(?i)^(?:ddl|due|deadline|by|截止(?:日期)?)\b[::\s]*`)

// createSpec is what the create handler extracts from free text before
// asking for confirmation.
type createSpec struct {
	Summary  string
	Priority string
	DueDate  string
}

// parseCreateSpec splits the request on commas and sorts each segment into
// priority, deadline, or summary text. Deadlines resolve against the
// injected now so previews and tests are deterministic.
func parseCreateSpec(text string, req HandlerRequest) createSpec {
	var spec createSpec
	var summaryParts []string
	segments := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '，' || r == ';' || r == '；'
	})
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if m := priorityRegex.FindStringSubmatch(seg); m != nil && strings.TrimSpace(priorityRegex.ReplaceAllString(seg, "")) == "" {
			if m[1] != "" {
				spec.Priority = m[1]
			} else {
				spec.Priority = m[2]
			}
			continue
		}
		if ddlRegex.MatchString(seg) {
			if date, ok := ResolveRelativeDate(seg, req.Now); ok {
				spec.DueDate = date
				continue
			}
		}
		summaryParts = append(summaryParts, seg)
	}
	spec.Summary = strings.TrimSpace(strings.Join(summaryParts, ", "))
	return spec
}

func stripCreatePrefix(text string) string {
	text = createRegex.ReplaceAllString(text, "")
	text = createCJKRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- create_item ---

type createHandler struct {
	tracker IssueTracker
	store   RefStore
	system  string
}

func NewCreateHandler(tracker IssueTracker, store RefStore, system string) Handler {
	return &createHandler{tracker: tracker, store: store, system: system}
}

const createUsage = "Usage: /create <summary>[, priority N][, ddl <date>]\nExample: /create fix pipeline, priority 2, ddl next wednesday"

func (h *createHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	// The cancel marker routes here as the default confirmation flow.
	if req.Result.Param(paramCancel) == "true" {
		return textResult(cancelledMsg)
	}

	pending, isReplay, err := replayOf(req)
	if isReplay {
		if err != nil {
			return textResult(corruptConfirmationMsg)
		}
		return h.commit(ctx, pending)
	}

	spec := parseCreateSpec(stripCreatePrefix(requestText(req)), req)
	if spec.Summary == "" {
		return textResult(createUsage)
	}

	var bodyLines []string
	bodyLines = append(bodyLines, fmt.Sprintf("Requested by <@%s> in chat %s.", req.Conv.UserID, req.Conv.ChatID))
	if spec.DueDate != "" {
		bodyLines = append(bodyLines, "Due: "+spec.DueDate)
	}
	command := fmt.Sprintf("issue create --title %s --body %s",
		quoteArg(spec.Summary), quoteArg(strings.Join(bodyLines, "\n")))
	if spec.Priority != "" {
		command += " --label " + quoteArg("p"+spec.Priority)
	}

	preview := fmt.Sprintf("About to create item: *%s*", spec.Summary)
	if spec.Priority != "" {
		preview += fmt.Sprintf(" (priority %s)", spec.Priority)
	}
	if spec.DueDate != "" {
		preview += fmt.Sprintf(" (due %s)", spec.DueDate)
	}
	preview += "\nConfirm?"

	return HandlerResult{
		Response: preview,
		Pending: &PendingAction{
			Intent: IntentCreateItem,
			Action: "create_issue",
			Payload: map[string]string{
				"summary":  spec.Summary,
				"dueDate":  spec.DueDate,
				"priority": spec.Priority,
				"command":  command,
				"chatId":   req.Conv.ChatID,
				"rootId":   req.Conv.ThreadRootID,
				"userId":   req.Conv.UserID,
			},
		},
	}
}

// commit executes the confirmed create and persists the thread linkage using
// only payload fields: the replay's ambient context is not trusted to match
// the original one.
func (h *createHandler) commit(ctx context.Context, pending PendingAction) HandlerResult {
	command := pending.Payload["command"]
	if command == "" {
		return textResult(corruptConfirmationMsg)
	}
	res := h.tracker.Run(ctx, command)
	if !res.Success {
		return textResult("Error creating item: " + res.Error)
	}

	url, number := parseCreatedIssueURL(res.Output)
	msg := fmt.Sprintf("Created item *%s*", pending.Payload["summary"])
	if number != "" {
		msg = fmt.Sprintf("Created item %s: *%s*", issueRef(number), pending.Payload["summary"])
	}
	if url != "" {
		msg += "\n" + url
	}

	if number != "" && pending.Payload["chatId"] != "" && pending.Payload["rootId"] != "" {
		ref := LinkedReference{
			ChatID:         pending.Payload["chatId"],
			RootID:         pending.Payload["rootId"],
			ExternalSystem: h.system,
			ExternalID:     number,
			ExternalURL:    url,
			CreatedBy:      pending.Payload["userId"],
		}
		if err := h.store.Save(ref); err != nil {
			log.Printf("create_item linkage save error chat=%s root=%s: %v", ref.ChatID, ref.RootID, err)
			msg += "\n(Could not link this thread to the new item.)"
		} else {
			msg += "\nThis thread is now linked to the item."
		}
	}
	return textResult(msg)
}

// --- close_item ---

type closeHandler struct {
	tracker IssueTracker
}

func NewCloseHandler(tracker IssueTracker) Handler {
	return &closeHandler{tracker: tracker}
}

const closeUsage = "Usage: /close <#N> <delivery link>\nExample: /close 42 delivered dashboard at https://x/y"

func (h *closeHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	pending, isReplay, err := replayOf(req)
	if isReplay {
		if err != nil {
			return textResult(corruptConfirmationMsg)
		}
		command := pending.Payload["command"]
		if command == "" {
			return textResult(corruptConfirmationMsg)
		}
		res := h.tracker.Run(ctx, command)
		if !res.Success {
			return textResult("Error closing item: " + res.Error)
		}
		return textResult(fmt.Sprintf("Closed item %s. Delivery: %s",
			issueRef(pending.Payload["issueId"]), pending.Payload["deliveryUrl"]))
	}

	issueID := issueIDFor(req)
	if issueID == "" {
		return textResult("Which item should I close? Include its number.\n" + closeUsage)
	}

	text := requestText(req)
	// Closing without delivery info is refused before any tracker call.
	url, ok := ExtractURL(text)
	if !ok {
		return textResult("A delivery link is required to close an item.\n" + closeUsage)
	}

	note := strings.TrimSpace(text)
	command := fmt.Sprintf("issue close %s --comment %s",
		issueID, quoteArg("Delivered: "+url+"\n"+note))

	return HandlerResult{
		Response: fmt.Sprintf("Close item %s with delivery %s — confirm?", issueRef(issueID), url),
		Pending: &PendingAction{
			Intent: IntentCloseItem,
			Action: "close_issue",
			Payload: map[string]string{
				"issueId":     issueID,
				"deliveryUrl": url,
				"command":     command,
				"chatId":      req.Conv.ChatID,
				"userId":      req.Conv.UserID,
			},
		},
	}
}

// --- assign_self ---

type assignHandler struct {
	tracker IssueTracker
	// logins maps chat user IDs to tracker logins; unmapped users fall back
	// to the CLI's authenticated identity.
	logins map[string]string
}

func NewAssignHandler(tracker IssueTracker, logins map[string]string) Handler {
	return &assignHandler{tracker: tracker, logins: logins}
}

func (h *assignHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	issueID := issueIDFor(req)
	if issueID == "" {
		return textResult("Which item do you want to claim? Mention its number, or link this thread first with /link <#N>.")
	}

	assignee := h.logins[req.Conv.UserID]
	if assignee == "" {
		assignee = "@me"
	}
	res := h.tracker.Run(ctx, fmt.Sprintf("issue edit %s --add-assignee %s", issueID, assignee))
	if !res.Success {
		return textResult("Error claiming item: " + res.Error)
	}
	return textResult(fmt.Sprintf("Item %s is now assigned to you.", issueRef(issueID)))
}

// --- link_existing ---

type linkHandler struct {
	tracker IssueTracker
	store   RefStore
	system  string
}

func NewLinkHandler(tracker IssueTracker, store RefStore, system string) Handler {
	return &linkHandler{tracker: tracker, store: store, system: system}
}

func (h *linkHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	// Re-linking a linked thread is refused, not overwritten.
	if ref := req.Conv.LinkedRef; ref != nil {
		return textResult(fmt.Sprintf("This thread is already linked to item %s (%s).",
			issueRef(ref.ExternalID), ref.ExternalURL))
	}

	issueID := req.Result.Param(paramIssueID)
	if issueID == "" {
		return textResult("Which item should this thread link to? Usage: /link <#N>")
	}

	res := h.tracker.Run(ctx, fmt.Sprintf("issue view %s --json number,title,state,url", issueID))
	if !res.Success {
		return textResult("Error looking up item: " + res.Error)
	}
	detail := parseIssueView(res.Output)

	ref := LinkedReference{
		ChatID:         req.Conv.ChatID,
		RootID:         req.Conv.ThreadRootID,
		ExternalSystem: h.system,
		ExternalID:     issueID,
		ExternalURL:    detail.URL,
		CreatedBy:      req.Conv.UserID,
	}
	if err := h.store.Save(ref); err != nil {
		return textResult(fmt.Sprintf("Error saving link: %v", err))
	}
	return textResult(fmt.Sprintf("Linked this thread to item %s: %s\n%s",
		issueRef(issueID), detail.Title, detail.URL))
}

// --- summarize_item ---

type summarizeHandler struct {
	tracker   IssueTracker
	completer TextCompleter
}

func NewSummarizeHandler(tracker IssueTracker, completer TextCompleter) Handler {
	return &summarizeHandler{tracker: tracker, completer: completer}
}

func (h *summarizeHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	issueID := issueIDFor(req)
	if issueID == "" {
		return textResult("Which item should I summarize? Usage: /summarize <#N>")
	}

	res := h.tracker.Run(ctx, fmt.Sprintf("issue view %s --json number,title,body,state,url,comments", issueID))
	if !res.Success {
		return textResult("Error loading item: " + res.Error)
	}
	detail := parseIssueView(res.Output)

	var b strings.Builder
	b.WriteString("Summarize this work item in at most five bullet points.\n\n")
	b.WriteString("Title: " + detail.Title + "\n")
	b.WriteString("State: " + detail.State + "\n")
	b.WriteString("Description:\n" + detail.Body + "\n")
	if len(detail.Comments) > 0 {
		b.WriteString("\nComments:\n")
		for _, c := range detail.Comments {
			b.WriteString("- " + c + "\n")
		}
	}

	summary, err := h.completer.Complete(ctx, b.String(), 0)
	if err != nil {
		return textResult(fmt.Sprintf("Error summarizing item: %v", err))
	}
	return textResult(fmt.Sprintf("Summary of %s — %s:\n%s", issueRef(issueID), detail.Title, strings.TrimSpace(summary)))
}

// --- update_linked_item ---

type updateHandler struct {
	tracker IssueTracker
}

func NewUpdateHandler(tracker IssueTracker) Handler {
	return &updateHandler{tracker: tracker}
}

func (h *updateHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	pending, isReplay, err := replayOf(req)
	if isReplay {
		if err != nil {
			return textResult(corruptConfirmationMsg)
		}
		command := pending.Payload["command"]
		if command == "" {
			return textResult(corruptConfirmationMsg)
		}
		res := h.tracker.Run(ctx, command)
		if !res.Success {
			return textResult("Error updating item: " + res.Error)
		}
		return textResult(fmt.Sprintf("Added your note to item %s.", issueRef(pending.Payload["issueId"])))
	}

	issueID := issueIDFor(req)
	if issueID == "" {
		return textResult("No linked item in this thread. Link one first with /link <#N>.")
	}

	note := strings.TrimSpace(requestText(req))
	if note == "" {
		return textResult("What should I add to the item? Usage: /update <text>")
	}

	command := fmt.Sprintf("issue comment %s --body %s", issueID,
		quoteArg(fmt.Sprintf("From chat (by %s):\n%s", req.Conv.UserID, note)))

	return HandlerResult{
		Response: fmt.Sprintf("Add this note to item %s — confirm?\n> %s", issueRef(issueID), note),
		Pending: &PendingAction{
			Intent: IntentUpdateLinkedItem,
			Action: "comment_issue",
			Payload: map[string]string{
				"issueId": issueID,
				"note":    note,
				"command": command,
				"chatId":  req.Conv.ChatID,
				"userId":  req.Conv.UserID,
			},
		},
	}
}

// --- list_items ---

type listHandler struct {
	tracker IssueTracker
}

func NewListHandler(tracker IssueTracker) Handler {
	return &listHandler{tracker: tracker}
}

func (h *listHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	res := h.tracker.Run(ctx, "issue list --state open --json number,title,state,assignees,url --limit 20")
	if !res.Success {
		return textResult("Error listing items: " + res.Error)
	}
	rows := parseIssueList(res.Output)
	if len(rows) == 0 {
		return textResult("No open items.")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Open items (%d):\n", len(rows)))
	for _, row := range rows {
		line := fmt.Sprintf("• #%d %s", row.Number, row.Title)
		if row.Assignee != "" {
			line += fmt.Sprintf(" — %s", row.Assignee)
		}
		b.WriteString(line + "\n")
	}
	return textResult(strings.TrimRight(b.String(), "\n"))
}

// --- review_changes ---

type reviewHandler struct {
	tracker IssueTracker
}

func NewReviewHandler(tracker IssueTracker) Handler {
	return &reviewHandler{tracker: tracker}
}

func (h *reviewHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	res := h.tracker.Run(ctx, "pr list --state open --json number,title,author,url --limit 20")
	if !res.Success {
		return textResult("Error listing change requests: " + res.Error)
	}
	rows := parsePRList(res.Output)
	if len(rows) == 0 {
		return textResult("No open change requests.")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Open change requests (%d):\n", len(rows)))
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("• #%d %s — %s\n  %s\n", row.Number, row.Title, row.Author, row.URL))
	}
	return textResult(strings.TrimRight(b.String(), "\n"))
}
