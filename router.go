package main

import (
	"context"
	"log"
	"time"
)

// HandlerRequest carries everything a handler may act on for one invocation.
// Now is injected so date resolution stays deterministic under test.
type HandlerRequest struct {
	Result ClassificationResult
	Conv   ConversationContext
	Now    time.Time
}

// HandlerResult is the raw outcome of one handler before formatting. At most
// one of Pending and Skip is set; Response may accompany Pending as the
// preview text shown next to the confirm buttons.
type HandlerResult struct {
	Response string
	Pending  *PendingAction
	Skip     bool
}

// Handler owns both behaviors of one intent: the preview (returning a
// pending action) and the committed replay of a confirmed token.
type Handler interface {
	Handle(ctx context.Context, req HandlerRequest) HandlerResult
}

// Router is a pure O(1) lookup from intent to handler. general_chat without
// the help flag maps to no handler — that is the skip path. A classified
// intent missing from the table is a routing gap: logged and skipped,
// never an error.
type Router struct {
	handlers map[Intent]Handler
	help     Handler
}

func NewRouter(handlers map[Intent]Handler, help Handler) *Router {
	return &Router{handlers: handlers, help: help}
}

func (r *Router) Route(res ClassificationResult) (Handler, bool) {
	if res.Intent == IntentGeneralChat {
		if res.Param(paramHelp) == "true" {
			return r.help, true
		}
		return nil, false
	}
	if res.Intent == IntentHelp {
		return r.help, true
	}
	h, ok := r.handlers[res.Intent]
	if !ok {
		log.Printf("router gap: intent=%s has no handler, skipping", res.Intent)
		return nil, false
	}
	return h, true
}
