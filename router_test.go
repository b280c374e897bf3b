package main

import (
	"context"
	"strings"
	"testing"
)

type staticHandler struct {
	response string
}

func (h *staticHandler) Handle(_ context.Context, _ HandlerRequest) HandlerResult {
	return textResult(h.response)
}

func TestRouterRoute(t *testing.T) {
	list := &staticHandler{response: "list"}
	help := &staticHandler{response: "help"}
	r := NewRouter(map[Intent]Handler{IntentListItems: list}, help)

	if h, ok := r.Route(ClassificationResult{Intent: IntentListItems}); !ok || h != Handler(list) {
		t.Fatal("list_items must route to its handler")
	}

	// Plain general_chat is the skip path.
	if _, ok := r.Route(ClassificationResult{Intent: IntentGeneralChat}); ok {
		t.Fatal("general_chat must not route")
	}

	// The help flag promotes general_chat to the help handler.
	res := ClassificationResult{Intent: IntentGeneralChat, Params: map[string]string{paramHelp: "true"}}
	if h, ok := r.Route(res); !ok || h != Handler(help) {
		t.Fatal("general_chat with help flag must route to help")
	}
	if h, ok := r.Route(ClassificationResult{Intent: IntentHelp}); !ok || h != Handler(help) {
		t.Fatal("help intent must route to help")
	}

	// A classified intent with no registered handler is a logged gap, not
	// an error.
	if _, ok := r.Route(ClassificationResult{Intent: IntentReviewChanges}); ok {
		t.Fatal("unregistered intent must skip")
	}
}

func TestHelpHandlerListsCommands(t *testing.T) {
	h := NewHelpHandler("Infra Team")
	out := h.Handle(context.Background(), HandlerRequest{})
	if out.Pending != nil || out.Skip {
		t.Fatal("help must be a plain response")
	}
	for _, want := range []string{"Infra Team", "/create", "/close", "/link", "/feedback", "/创建"} {
		if !strings.Contains(out.Response, want) {
			t.Fatalf("help text missing %q:\n%s", want, out.Response)
		}
	}
}
