package main

import "time"

// Intent is the classified category of a user request. The set is closed:
// anything the classifier cannot resolve ends up as IntentGeneralChat.
type Intent string

const (
	IntentCreateItem       Intent = "create_item"
	IntentListItems        Intent = "list_items"
	IntentCloseItem        Intent = "close_item"
	IntentAssignSelf       Intent = "assign_self"
	IntentLinkExisting     Intent = "link_existing"
	IntentSummarizeItem    Intent = "summarize_item"
	IntentSearchHistory    Intent = "search_history"
	IntentReadDocument     Intent = "read_document"
	IntentUpdateLinkedItem Intent = "update_linked_item"
	IntentCollectFeedback  Intent = "collect_feedback"
	IntentReviewChanges    Intent = "review_changes"
	IntentGeneralChat      Intent = "general_chat"
	IntentHelp             Intent = "help"
)

var knownIntents = map[Intent]bool{
	IntentCreateItem:       true,
	IntentListItems:        true,
	IntentCloseItem:        true,
	IntentAssignSelf:       true,
	IntentLinkExisting:     true,
	IntentSummarizeItem:    true,
	IntentSearchHistory:    true,
	IntentReadDocument:     true,
	IntentUpdateLinkedItem: true,
	IntentCollectFeedback:  true,
	IntentReviewChanges:    true,
	IntentGeneralChat:      true,
	IntentHelp:             true,
}

// Param keys shared between the classifier and handlers. Absence of a key is
// a valid state the handler must report as a usage error, never a crash.
const (
	paramRemainder   = "remainder"
	paramIssueID     = "issueId"
	paramDocURL      = "docUrl"
	paramTargetUsers = "targetUsers"
	paramHelp        = "help"
	paramCancel      = "cancel"
)

type ClassificationResult struct {
	Intent   Intent
	Params   map[string]string
	RawQuery string
}

func (r ClassificationResult) Param(key string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params[key]
}

// ConversationContext is supplied by the caller per invocation and never
// mutated by the workflow core. LinkedRef is the externally persisted thread
// binding, loaded by the caller before each run.
type ConversationContext struct {
	ChatID       string
	ThreadRootID string
	UserID       string
	LinkedRef    *LinkedReference
}

// LinkedReference binds a conversation thread to an external tracked item.
// Created by the link/create handlers, read-only everywhere else. There is
// no unlink operation.
type LinkedReference struct {
	ChatID         string
	RootID         string
	ExternalSystem string
	ExternalID     string
	ExternalURL    string
	CreatedBy      string
	CreatedAt      time.Time
}

// PendingAction is returned by a handler instead of its effect when the
// action needs human confirmation. The payload must be self-contained: the
// replay may arrive with a different or absent conversation context, so
// context fields are duplicated into the payload at creation time.
type PendingAction struct {
	Intent  Intent
	Action  string
	Payload map[string]string
}

// WorkflowOutput is the single output envelope of a run. A normal response,
// NeedsConfirmation and Skip are mutually exclusive terminal outcomes;
// Skip means the caller must delegate to its conversational fallback.
type WorkflowOutput struct {
	Response          string
	Intent            Intent
	NeedsConfirmation bool
	ConfirmationData  string
	Skip              bool
}

// CommandResult is what the issue-tracker collaborator returns. The command
// it ran is opaque to the workflow core.
type CommandResult struct {
	Success bool
	Output  string
	Error   string
}

// FeedbackEntry records one feedback request made through collect_feedback,
// read back by the digest scheduler.
type FeedbackEntry struct {
	ID          int64
	ChatID      string
	TargetUser  string
	Topic       string
	RequestedBy string
	TaskRef     string
	CreatedAt   time.Time
}
