package main

import "log"

// A handler that produced neither text nor a pending action is a programming
// error; the user still gets a sentence instead of silence.
const emptyResponseFallback = "Request processed, but no details were returned."

// FormatOutput collapses a handler result into the single output envelope.
// The skip signal short-circuits and discards any other fields; a pending
// action is encoded into its confirmation token here, so handlers never
// touch the wire format.
func FormatOutput(intent Intent, hr HandlerResult) WorkflowOutput {
	if hr.Skip {
		return WorkflowOutput{Intent: intent, Skip: true}
	}

	out := WorkflowOutput{Intent: intent, Response: hr.Response}

	if hr.Pending != nil {
		token, err := EncodeConfirmation(*hr.Pending)
		if err != nil {
			// Payloads are maps of strings; marshal failure here means a bug,
			// not user input. Degrade to a visible error line.
			log.Printf("formatter encode pending action failed intent=%s: %v", intent, err)
			out.Response = "Sorry, I could not prepare that action for confirmation."
			return out
		}
		out.NeedsConfirmation = true
		out.ConfirmationData = token
	}

	if out.Response == "" {
		log.Printf("formatter empty response intent=%s, substituting fallback", intent)
		out.Response = emptyResponseFallback
	}
	return out
}
