package main

import (
	"net/http"
	"time"
)

const externalHTTPTimeout = 30 * time.Second

// Shared client for every outbound HTTP collaborator (LLM provider, task
// tracker, document host). The timeout bounds each single call; slower
// failures surface as collaborator errors, not pipeline hangs.
var externalHTTPClient = &http.Client{
	Timeout: externalHTTPTimeout,
}
