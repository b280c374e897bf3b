package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Notifier sends a direct message to one chat user. Implemented by the
// Slack layer; stubbed in tests.
type Notifier interface {
	DM(ctx context.Context, userID, text string) error
}

// collect_feedback fans one feedback task out per mentioned teammate: a
// task in the external tracker, a DM, and a row in the local feedback log
// the digest scheduler reads. The fan-out is concurrent but local to this
// handler; the routing core stays sequential.
type feedbackHandler struct {
	tasks    TaskClient
	notifier Notifier
	db       *sql.DB
}

func NewFeedbackHandler(tasks TaskClient, notifier Notifier, db *sql.DB) Handler {
	return &feedbackHandler{tasks: tasks, notifier: notifier, db: db}
}

const feedbackUsage = "Usage: /feedback @user [@user...] <topic>\nExample: /feedback @alice @bob Q3 release notes"

func (h *feedbackHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	pending, isReplay, err := replayOf(req)
	if isReplay {
		if err != nil {
			return textResult(corruptConfirmationMsg)
		}
		return h.commit(ctx, pending)
	}

	text := requestText(req)
	targets := ExtractMentions(text)
	if len(targets) == 0 {
		return textResult("Who should I ask? Mention at least one user.\n" + feedbackUsage)
	}

	topic := strings.TrimSpace(atMentionRegex.ReplaceAllString(slackMentionRegex.ReplaceAllString(text, " "), " "))
	if topic == "" {
		topic = "general feedback"
	}
	dueDate, _ := ResolveRelativeDate(text, req.Now)

	return HandlerResult{
		Response: fmt.Sprintf("Ask %d teammate(s) for feedback on \"%s\" — confirm?", len(targets), topic),
		Pending: &PendingAction{
			Intent: IntentCollectFeedback,
			Action: "collect_feedback",
			Payload: map[string]string{
				"targets": strings.Join(targets, ","),
				"topic":   topic,
				"dueDate": dueDate,
				"chatId":  req.Conv.ChatID,
				"rootId":  req.Conv.ThreadRootID,
				"userId":  req.Conv.UserID,
			},
		},
	}
}

func (h *feedbackHandler) commit(ctx context.Context, pending PendingAction) HandlerResult {
	var targets []string
	for _, t := range strings.Split(pending.Payload["targets"], ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return textResult(corruptConfirmationMsg)
	}
	topic := pending.Payload["topic"]
	requestedBy := pending.Payload["userId"]
	chatID := pending.Payload["chatId"]
	dueDate := pending.Payload["dueDate"]

	type outcome struct {
		target  string
		taskRef string
		err     error
	}
	results := make([]outcome, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(idx int, target string) {
			defer wg.Done()
			ref, err := h.tasks.CreateTask(ctx, TaskSpec{
				Title:    fmt.Sprintf("Feedback requested: %s", topic),
				Assignee: target,
				Notes:    fmt.Sprintf("Requested by %s in chat %s.", requestedBy, chatID),
				DueDate:  dueDate,
			})
			results[idx] = outcome{target: target, taskRef: ref, err: err}
		}(i, target)
	}
	wg.Wait()

	var asked, failed []string
	for _, r := range results {
		if r.err != nil {
			log.Printf("feedback task error target=%s: %v", r.target, r.err)
			failed = append(failed, fmt.Sprintf("%s (%v)", r.target, r.err))
			continue
		}
		asked = append(asked, r.target)

		if dbErr := InsertFeedbackEntry(h.db, FeedbackEntry{
			ChatID:      chatID,
			TargetUser:  r.target,
			Topic:       topic,
			RequestedBy: requestedBy,
			TaskRef:     r.taskRef,
		}); dbErr != nil {
			log.Printf("feedback log insert error target=%s: %v", r.target, dbErr)
		}

		dm := fmt.Sprintf("Hi! <@%s> asked for your feedback on \"%s\".", requestedBy, topic)
		if dueDate != "" {
			dm += fmt.Sprintf(" Please reply by %s.", dueDate)
		}
		if r.taskRef != "" {
			dm += "\nTask: " + r.taskRef
		}
		if notifyErr := h.notifier.DM(ctx, r.target, dm); notifyErr != nil {
			log.Printf("feedback DM error target=%s: %v", r.target, notifyErr)
		}
	}

	if len(asked) == 0 {
		return textResult("Could not create any feedback tasks:\n" + strings.Join(failed, "\n"))
	}
	msg := fmt.Sprintf("Asked %d teammate(s) for feedback on \"%s\".", len(asked), topic)
	if len(failed) > 0 {
		msg += "\nFailed for: " + strings.Join(failed, ", ")
	}
	return textResult(msg)
}
