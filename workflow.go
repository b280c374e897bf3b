package main

import (
	"context"
	"log"
	"time"
)

// Workflow is the per-message pipeline: Classifier -> Router -> one Handler
// -> Formatter. It holds no state between invocations; continuity comes only
// from the confirmation token round-trip and the caller-supplied linked
// reference. Run never returns an error and never panics outward.
type Workflow struct {
	classifier *Classifier
	router     *Router
	now        func() time.Time
}

func NewWorkflow(classifier *Classifier, router *Router) *Workflow {
	return &Workflow{
		classifier: classifier,
		router:     router,
		now:        time.Now,
	}
}

func (w *Workflow) Run(ctx context.Context, rawQuery string, conv ConversationContext) (out WorkflowOutput) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("workflow panic recovered: %v", r)
			out = WorkflowOutput{Intent: IntentGeneralChat, Skip: true}
		}
	}()

	res := w.classifier.Classify(ctx, rawQuery, conv)

	handler, ok := w.router.Route(res)
	if !ok {
		log.Printf("workflow intent=%s skip=true", res.Intent)
		return WorkflowOutput{Intent: res.Intent, Skip: true}
	}

	hr := handler.Handle(ctx, HandlerRequest{
		Result: res,
		Conv:   conv,
		Now:    w.now(),
	})

	out = FormatOutput(res.Intent, hr)
	log.Printf("workflow intent=%s confirm=%t skip=%t", out.Intent, out.NeedsConfirmation, out.Skip)
	return out
}
