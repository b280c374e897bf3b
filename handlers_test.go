package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// --- shared fakes ---

type fakeTracker struct {
	calls  []string
	result CommandResult
}

func (f *fakeTracker) Run(_ context.Context, command string) CommandResult {
	f.calls = append(f.calls, command)
	return f.result
}

type memRefStore struct {
	refs    map[string]LinkedReference
	saves   int
	saveErr error
}

func newMemRefStore() *memRefStore {
	return &memRefStore{refs: make(map[string]LinkedReference)}
}

func (s *memRefStore) Load(chatID, rootID string) (*LinkedReference, error) {
	if ref, ok := s.refs[chatID+"|"+rootID]; ok {
		return &ref, nil
	}
	return nil, nil
}

func (s *memRefStore) Save(ref LinkedReference) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.refs[ref.ChatID+"|"+ref.RootID] = ref
	return nil
}

type fakeTasks struct {
	mu    sync.Mutex
	specs []TaskSpec
	err   error
}

func (f *fakeTasks) CreateTask(_ context.Context, t TaskSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.specs = append(f.specs, t)
	return "TASK-" + t.Assignee, nil
}

type fakeNotifier struct {
	mu  sync.Mutex
	dms map[string]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{dms: make(map[string]string)}
}

func (f *fakeNotifier) DM(_ context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms[userID] = text
	return nil
}

type fakeFetcher struct {
	messages []string
	err      error
}

func (f *fakeFetcher) FetchThread(_ context.Context, _, _ string, _ int) ([]string, error) {
	return f.messages, f.err
}

func (f *fakeFetcher) FetchChannel(_ context.Context, _ string, _ int) ([]string, error) {
	return f.messages, f.err
}

type fakeDocReader struct {
	content string
	err     error
}

func (f *fakeDocReader) Read(_ context.Context, _ string) (string, error) {
	return f.content, f.err
}

func freshRequest(intent Intent, raw string, params map[string]string) HandlerRequest {
	if params == nil {
		params = make(map[string]string)
	}
	return HandlerRequest{
		Result: ClassificationResult{Intent: intent, Params: params, RawQuery: raw},
		Conv:   ConversationContext{ChatID: "C1", ThreadRootID: "T1", UserID: "U1"},
		Now:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func replayRequest(t *testing.T, pending PendingAction) HandlerRequest {
	t.Helper()
	token, err := EncodeConfirmation(pending)
	if err != nil {
		t.Fatalf("encode pending: %v", err)
	}
	req := freshRequest(pending.Intent, token, nil)
	return req
}

// --- helpers ---

func TestReplayOfBranchesOnPrefixOnly(t *testing.T) {
	// Payload-shaped text without the prefix stays a fresh request.
	req := freshRequest(IntentCloseItem, `{"v":1,"intent":"close_item","payload":{"issueId":"1"}}`, nil)
	if _, isReplay, _ := replayOf(req); isReplay {
		t.Fatal("fresh payload-shaped text treated as replay")
	}

	req = freshRequest(IntentCloseItem, confirmPrefix+"{broken", nil)
	_, isReplay, err := replayOf(req)
	if !isReplay || err == nil {
		t.Fatalf("corrupt token = (replay=%v, err=%v)", isReplay, err)
	}
}

func TestIssueIDForPrecedence(t *testing.T) {
	req := freshRequest(IntentCloseItem, "close 42", map[string]string{paramIssueID: "42"})
	req.Conv.LinkedRef = &LinkedReference{ExternalID: "7"}
	if got := issueIDFor(req); got != "42" {
		t.Fatalf("explicit param must win, got %q", got)
	}

	req = freshRequest(IntentCloseItem, "close it", nil)
	req.Conv.LinkedRef = &LinkedReference{ExternalID: "7"}
	if got := issueIDFor(req); got != "7" {
		t.Fatalf("linked fallback = %q", got)
	}

	req = freshRequest(IntentCloseItem, "close it", nil)
	if got := issueIDFor(req); got != "" {
		t.Fatalf("no reference = %q", got)
	}
}

// --- create_item ---

func TestCreateHandlerFresh(t *testing.T) {
	tracker := &fakeTracker{}
	store := newMemRefStore()
	h := NewCreateHandler(tracker, store, "github")

	out := h.Handle(context.Background(), freshRequest(IntentCreateItem, "/create", map[string]string{paramRemainder: ""}))
	if out.Pending != nil || !strings.Contains(out.Response, "Usage:") {
		t.Fatalf("empty create = %+v", out)
	}

	req := freshRequest(IntentCreateItem, "", map[string]string{
		paramRemainder: "fix pipeline, priority 2, ddl next wednesday",
	})
	out = h.Handle(context.Background(), req)
	if out.Pending == nil {
		t.Fatalf("expected pending action, got %+v", out)
	}
	p := out.Pending.Payload
	if p["summary"] != "fix pipeline" || p["priority"] != "2" || p["dueDate"] != "2025-03-12" {
		t.Fatalf("payload = %+v", p)
	}
	if !strings.Contains(p["command"], "issue create --title") {
		t.Fatalf("command = %q", p["command"])
	}
	if p["chatId"] != "C1" || p["rootId"] != "T1" || p["userId"] != "U1" {
		t.Fatalf("context not duplicated into payload: %+v", p)
	}
	if len(tracker.calls) != 0 {
		t.Fatalf("tracker called before confirmation: %v", tracker.calls)
	}
}

func TestCreateHandlerCancel(t *testing.T) {
	h := NewCreateHandler(&fakeTracker{}, newMemRefStore(), "github")
	out := h.Handle(context.Background(), freshRequest(IntentCreateItem, "cancel_action", map[string]string{paramCancel: "true"}))
	if out.Response != cancelledMsg || out.Pending != nil {
		t.Fatalf("cancel = %+v", out)
	}
}

func TestCreateHandlerCommit(t *testing.T) {
	tracker := &fakeTracker{result: CommandResult{
		Success: true,
		Output:  "https://github.com/acme/app/issues/77",
	}}
	store := newMemRefStore()
	h := NewCreateHandler(tracker, store, "github")

	pending := PendingAction{
		Intent: IntentCreateItem,
		Action: "create_issue",
		Payload: map[string]string{
			"summary": "fix pipeline",
			"command": `issue create --title "fix pipeline" --body "Requested."`,
			"chatId":  "C1",
			"rootId":  "T1",
			"userId":  "U1",
		},
	}
	out := h.Handle(context.Background(), replayRequest(t, pending))
	if out.Pending != nil {
		t.Fatal("commit must not ask for confirmation again")
	}
	if len(tracker.calls) != 1 || tracker.calls[0] != pending.Payload["command"] {
		t.Fatalf("tracker calls = %v", tracker.calls)
	}
	if !strings.Contains(out.Response, "#77") {
		t.Fatalf("response missing item ref: %q", out.Response)
	}
	if saved, _ := store.Load("C1", "T1"); saved == nil || saved.ExternalID != "77" {
		t.Fatalf("linkage not saved: %+v", saved)
	}

	// A corrupt token in the replay branch is a user-visible message.
	req := freshRequest(IntentCreateItem, confirmPrefix+"{broken", nil)
	out = h.Handle(context.Background(), req)
	if out.Response != corruptConfirmationMsg {
		t.Fatalf("corrupt replay = %q", out.Response)
	}
}

// --- close_item ---

func TestCloseHandlerRequiresDeliveryURL(t *testing.T) {
	tracker := &fakeTracker{}
	h := NewCloseHandler(tracker)

	req := freshRequest(IntentCloseItem, "/close 42", map[string]string{
		paramRemainder: "42",
		paramIssueID:   "42",
	})
	out := h.Handle(context.Background(), req)
	if out.Pending != nil || !strings.Contains(out.Response, "delivery link is required") {
		t.Fatalf("close without URL = %+v", out)
	}
	if len(tracker.calls) != 0 {
		t.Fatalf("tracker called on refused close: %v", tracker.calls)
	}

	req = freshRequest(IntentCloseItem, "/close 42 delivered dashboard at https://x/y", map[string]string{
		paramRemainder: "42 delivered dashboard at https://x/y",
		paramIssueID:   "42",
	})
	out = h.Handle(context.Background(), req)
	if out.Pending == nil {
		t.Fatalf("expected pending close, got %+v", out)
	}
	if out.Pending.Payload["issueId"] != "42" || out.Pending.Payload["deliveryUrl"] != "https://x/y" {
		t.Fatalf("payload = %+v", out.Pending.Payload)
	}
	if len(tracker.calls) != 0 {
		t.Fatal("tracker called before confirmation")
	}
}

func TestCloseHandlerCommit(t *testing.T) {
	tracker := &fakeTracker{result: CommandResult{Success: true}}
	h := NewCloseHandler(tracker)

	pending := PendingAction{
		Intent: IntentCloseItem,
		Action: "close_issue",
		Payload: map[string]string{
			"issueId":     "42",
			"deliveryUrl": "https://x/y",
			"command":     `issue close 42 --comment "Delivered: https://x/y"`,
		},
	}
	out := h.Handle(context.Background(), replayRequest(t, pending))
	if len(tracker.calls) != 1 {
		t.Fatalf("tracker calls = %v", tracker.calls)
	}
	if !strings.Contains(out.Response, "#42") || !strings.Contains(out.Response, "https://x/y") {
		t.Fatalf("response = %q", out.Response)
	}
}

// --- assign_self ---

func TestAssignHandler(t *testing.T) {
	tracker := &fakeTracker{result: CommandResult{Success: true}}
	h := NewAssignHandler(tracker, map[string]string{"U1": "alice-gh"})

	req := freshRequest(IntentAssignSelf, "I'll take this", nil)
	req.Conv.LinkedRef = &LinkedReference{ExternalID: "7"}
	out := h.Handle(context.Background(), req)
	if !strings.Contains(out.Response, "#7") {
		t.Fatalf("response = %q", out.Response)
	}
	if tracker.calls[0] != "issue edit 7 --add-assignee alice-gh" {
		t.Fatalf("command = %q", tracker.calls[0])
	}

	// Unmapped users fall back to the CLI identity.
	req.Conv.UserID = "U9"
	h.Handle(context.Background(), req)
	if tracker.calls[1] != "issue edit 7 --add-assignee @me" {
		t.Fatalf("fallback command = %q", tracker.calls[1])
	}

	out = h.Handle(context.Background(), freshRequest(IntentAssignSelf, "I'll take this", nil))
	if !strings.Contains(out.Response, "Which item") {
		t.Fatalf("no reference = %q", out.Response)
	}
}

// --- link_existing ---

func TestLinkHandlerIdempotentRefusal(t *testing.T) {
	tracker := &fakeTracker{}
	store := newMemRefStore()
	h := NewLinkHandler(tracker, store, "github")

	req := freshRequest(IntentLinkExisting, "link to #123", map[string]string{paramIssueID: "123"})
	req.Conv.LinkedRef = &LinkedReference{ExternalID: "42", ExternalURL: "https://github.com/acme/app/issues/42"}
	out := h.Handle(context.Background(), req)
	if !strings.Contains(out.Response, "already linked") {
		t.Fatalf("response = %q", out.Response)
	}
	if store.saves != 0 || len(tracker.calls) != 0 {
		t.Fatalf("side effects on refusal: saves=%d calls=%v", store.saves, tracker.calls)
	}
}

func TestLinkHandlerLinks(t *testing.T) {
	tracker := &fakeTracker{result: CommandResult{
		Success: true,
		Output:  `{"number": 123, "title": "Slow dashboard", "state": "OPEN", "url": "https://github.com/acme/app/issues/123"}`,
	}}
	store := newMemRefStore()
	h := NewLinkHandler(tracker, store, "github")

	req := freshRequest(IntentLinkExisting, "link to #123", map[string]string{paramIssueID: "123"})
	out := h.Handle(context.Background(), req)
	if !strings.Contains(out.Response, "Slow dashboard") {
		t.Fatalf("response = %q", out.Response)
	}
	saved, _ := store.Load("C1", "T1")
	if saved == nil || saved.ExternalID != "123" || saved.ExternalSystem != "github" || saved.CreatedBy != "U1" {
		t.Fatalf("saved = %+v", saved)
	}
}

// --- summarize_item ---

func TestSummarizeHandler(t *testing.T) {
	tracker := &fakeTracker{result: CommandResult{
		Success: true,
		Output:  `{"number": 5, "title": "Login flow", "body": "Users see 500s", "state": "OPEN", "comments": [{"body": "fixed in staging"}]}`,
	}}
	completer := &stubCompleter{answer: "- users saw 500s\n- fix is in staging"}
	h := NewSummarizeHandler(tracker, completer)

	req := freshRequest(IntentSummarizeItem, "/summarize 5", map[string]string{paramIssueID: "5"})
	out := h.Handle(context.Background(), req)
	if !strings.Contains(out.Response, "#5") || !strings.Contains(out.Response, "fix is in staging") {
		t.Fatalf("response = %q", out.Response)
	}
	if !strings.Contains(completer.lastPrompt, "Users see 500s") || !strings.Contains(completer.lastPrompt, "fixed in staging") {
		t.Fatalf("prompt missing item content:\n%s", completer.lastPrompt)
	}

	h = NewSummarizeHandler(tracker, &stubCompleter{err: errors.New("api down")})
	out = h.Handle(context.Background(), req)
	if !strings.Contains(out.Response, "api down") {
		t.Fatalf("llm error response = %q", out.Response)
	}
}

// --- update_linked_item ---

func TestUpdateHandler(t *testing.T) {
	tracker := &fakeTracker{result: CommandResult{Success: true}}
	h := NewUpdateHandler(tracker)

	out := h.Handle(context.Background(), freshRequest(IntentUpdateLinkedItem, "btw deployed", map[string]string{paramRemainder: "btw deployed"}))
	if !strings.Contains(out.Response, "No linked item") {
		t.Fatalf("unlinked = %q", out.Response)
	}

	req := freshRequest(IntentUpdateLinkedItem, "btw deployed", map[string]string{
		paramRemainder: "btw deployed",
		paramIssueID:   "7",
	})
	out = h.Handle(context.Background(), req)
	if out.Pending == nil || out.Pending.Payload["issueId"] != "7" {
		t.Fatalf("fresh update = %+v", out)
	}
	if len(tracker.calls) != 0 {
		t.Fatal("tracker called before confirmation")
	}

	out = h.Handle(context.Background(), replayRequest(t, *out.Pending))
	if len(tracker.calls) != 1 || !strings.Contains(tracker.calls[0], "issue comment 7") {
		t.Fatalf("commit calls = %v", tracker.calls)
	}
	if !strings.Contains(out.Response, "#7") {
		t.Fatalf("commit response = %q", out.Response)
	}
}

// --- search_history / read_document ---

func TestHistoryHandler(t *testing.T) {
	fetcher := &fakeFetcher{messages: []string{"alice: deploy failed", "bob: rolled back at 14:00"}}
	completer := &stubCompleter{answer: "Bob rolled it back at 14:00."}
	h := NewHistoryHandler(fetcher, completer)

	req := freshRequest(IntentSearchHistory, "/history when did we roll back?", map[string]string{paramRemainder: "when did we roll back?"})
	out := h.Handle(context.Background(), req)
	if out.Response != "Bob rolled it back at 14:00." {
		t.Fatalf("response = %q", out.Response)
	}
	if !strings.Contains(completer.lastPrompt, "rolled back at 14:00") {
		t.Fatalf("prompt missing transcript:\n%s", completer.lastPrompt)
	}

	h = NewHistoryHandler(&fakeFetcher{}, completer)
	out = h.Handle(context.Background(), req)
	if !strings.Contains(out.Response, "No earlier discussion") {
		t.Fatalf("empty history = %q", out.Response)
	}
}

func TestDocHandler(t *testing.T) {
	reader := &fakeDocReader{content: "Design doc body about retries."}
	completer := &stubCompleter{answer: "- retries are capped at 3"}
	h := NewDocHandler(reader, completer)

	doc := "https://acme.feishu.cn/docx/AbC123"
	req := freshRequest(IntentReadDocument, "/doc "+doc, map[string]string{paramDocURL: doc})
	out := h.Handle(context.Background(), req)
	if !strings.Contains(out.Response, doc) || !strings.Contains(out.Response, "retries are capped") {
		t.Fatalf("response = %q", out.Response)
	}

	out = h.Handle(context.Background(), freshRequest(IntentReadDocument, "/doc https://example.com/x", nil))
	if !strings.Contains(out.Response, "supported host") {
		t.Fatalf("bad host = %q", out.Response)
	}
}

// --- collect_feedback ---

func TestFeedbackHandlerFresh(t *testing.T) {
	h := NewFeedbackHandler(&fakeTasks{}, newFakeNotifier(), newTestDB(t))

	out := h.Handle(context.Background(), freshRequest(IntentCollectFeedback, "/feedback no mentions", map[string]string{paramRemainder: "no mentions"}))
	if out.Pending != nil || !strings.Contains(out.Response, "Mention at least one user") {
		t.Fatalf("no mentions = %+v", out)
	}

	req := freshRequest(IntentCollectFeedback, "", map[string]string{
		paramRemainder: "<@U2> <@U3> Q3 release notes by friday",
	})
	out = h.Handle(context.Background(), req)
	if out.Pending == nil {
		t.Fatalf("expected pending, got %+v", out)
	}
	p := out.Pending.Payload
	if p["targets"] != "U2,U3" {
		t.Fatalf("targets = %q", p["targets"])
	}
	if !strings.Contains(p["topic"], "Q3 release notes") {
		t.Fatalf("topic = %q", p["topic"])
	}
	if p["dueDate"] != "2025-03-14" {
		t.Fatalf("dueDate = %q", p["dueDate"])
	}
}

func TestFeedbackHandlerCommit(t *testing.T) {
	tasks := &fakeTasks{}
	notifier := newFakeNotifier()
	db := newTestDB(t)
	h := NewFeedbackHandler(tasks, notifier, db)

	pending := PendingAction{
		Intent: IntentCollectFeedback,
		Action: "collect_feedback",
		Payload: map[string]string{
			"targets": "U2,U3",
			"topic":   "Q3 release notes",
			"dueDate": "2025-03-14",
			"chatId":  "C1",
			"rootId":  "T1",
			"userId":  "U1",
		},
	}
	out := h.Handle(context.Background(), replayRequest(t, pending))
	if !strings.Contains(out.Response, "Asked 2 teammate(s)") {
		t.Fatalf("response = %q", out.Response)
	}
	if len(tasks.specs) != 2 {
		t.Fatalf("tasks created = %d", len(tasks.specs))
	}
	for _, target := range []string{"U2", "U3"} {
		dm, ok := notifier.dms[target]
		if !ok {
			t.Fatalf("no DM sent to %s", target)
		}
		if !strings.Contains(dm, "Q3 release notes") || !strings.Contains(dm, "2025-03-14") {
			t.Fatalf("DM to %s = %q", target, dm)
		}
	}

	entries, err := GetFeedbackSince(db, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetFeedbackSince: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("feedback log rows = %d", len(entries))
	}

	// All task creations failing is reported, not silently dropped.
	h = NewFeedbackHandler(&fakeTasks{err: fmt.Errorf("tracker down")}, notifier, db)
	out = h.Handle(context.Background(), replayRequest(t, pending))
	if !strings.Contains(out.Response, "Could not create any feedback tasks") {
		t.Fatalf("all-failed response = %q", out.Response)
	}
}
