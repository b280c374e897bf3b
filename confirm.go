package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Confirmation wire format, round-tripped verbatim through chat UI buttons:
//
//	confirm: "confirm_action:" + JSON envelope
//	cancel:  "cancel_action" (no payload)
//
// Tokens are deliberately unsigned and never expire: any user able to post
// the exact token text can trigger the effect, same as clicking the original
// button. That trust boundary is part of the protocol, not an oversight, so
// do not add signing or TTLs here without changing the external UI contract.
const (
	confirmPrefix = "confirm_action:"
	cancelMarker  = "cancel_action"

	confirmationVersion = 1
)

// confirmationEnvelope is the serialized form of a PendingAction. The intent
// tag routes the replayed token back to the handler that produced it.
type confirmationEnvelope struct {
	Version int               `json:"v"`
	Intent  string            `json:"intent"`
	Action  string            `json:"action"`
	Payload map[string]string `json:"payload,omitempty"`
}

func IsConfirmation(raw string) bool {
	return strings.HasPrefix(raw, confirmPrefix)
}

func IsCancellation(raw string) bool {
	return strings.TrimSpace(raw) == cancelMarker
}

// EncodeConfirmation serializes a pending action into its wire token.
func EncodeConfirmation(p PendingAction) (string, error) {
	env := confirmationEnvelope{
		Version: confirmationVersion,
		Intent:  string(p.Intent),
		Action:  p.Action,
		Payload: p.Payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode confirmation: %w", err)
	}
	return confirmPrefix + string(data), nil
}

// DecodeConfirmation parses a confirm token back into the pending action it
// carries. A malformed payload is a user-visible parse failure for the
// handler to report, never a crash.
func DecodeConfirmation(token string) (PendingAction, error) {
	if !IsConfirmation(token) {
		return PendingAction{}, fmt.Errorf("not a confirmation token")
	}
	body := token[len(confirmPrefix):]
	var env confirmationEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return PendingAction{}, fmt.Errorf("decode confirmation payload: %w", err)
	}
	if env.Version != confirmationVersion {
		return PendingAction{}, fmt.Errorf("unsupported confirmation version %d", env.Version)
	}
	if !knownIntents[Intent(env.Intent)] {
		return PendingAction{}, fmt.Errorf("confirmation carries unknown intent %q", env.Intent)
	}
	return PendingAction{
		Intent:  Intent(env.Intent),
		Action:  env.Action,
		Payload: env.Payload,
	}, nil
}
