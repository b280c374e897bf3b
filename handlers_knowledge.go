package main

import (
	"context"
	"fmt"
	"strings"
)

const historyFetchLimit = 50

// --- search_history ---

type historyHandler struct {
	fetcher   HistoryFetcher
	completer TextCompleter
}

func NewHistoryHandler(fetcher HistoryFetcher, completer TextCompleter) Handler {
	return &historyHandler{fetcher: fetcher, completer: completer}
}

func (h *historyHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	question := strings.TrimSpace(requestText(req))
	if question == "" {
		return textResult("What should I look for? Usage: /history <question>")
	}

	messages, err := h.fetcher.FetchThread(ctx, req.Conv.ChatID, req.Conv.ThreadRootID, historyFetchLimit)
	if err != nil {
		return textResult(fmt.Sprintf("Error fetching chat history: %v", err))
	}
	if len(messages) == 0 {
		return textResult("No earlier discussion found here.")
	}

	var b strings.Builder
	b.WriteString("Answer the question using only the chat transcript below. ")
	b.WriteString("If the transcript does not contain the answer, say so.\n\nTranscript:\n")
	for _, m := range messages {
		b.WriteString(m + "\n")
	}
	b.WriteString("\nQuestion: " + question)

	answer, err := h.completer.Complete(ctx, b.String(), 0)
	if err != nil {
		return textResult(fmt.Sprintf("Error searching history: %v", err))
	}
	return textResult(strings.TrimSpace(answer))
}

// --- read_document ---

type docHandler struct {
	reader    DocReader
	completer TextCompleter
}

func NewDocHandler(reader DocReader, completer TextCompleter) Handler {
	return &docHandler{reader: reader, completer: completer}
}

const docUsage = "Usage: /doc <document link>\nOnly Feishu/Lark document links are supported."

func (h *docHandler) Handle(ctx context.Context, req HandlerRequest) HandlerResult {
	url := req.Result.Param(paramDocURL)
	if url == "" {
		if u, ok := ExtractDocURL(req.Result.RawQuery); ok {
			url = u
		}
	}
	if url == "" {
		return textResult("I need a document link on a supported host.\n" + docUsage)
	}

	content, err := h.reader.Read(ctx, url)
	if err != nil {
		return textResult(fmt.Sprintf("Error reading document: %v", err))
	}
	if strings.TrimSpace(content) == "" {
		return textResult("The document appears to be empty.")
	}

	prompt := "Summarize the key points of this document in a short bullet list.\n\n" + content
	summary, err := h.completer.Complete(ctx, prompt, 0)
	if err != nil {
		return textResult(fmt.Sprintf("Error summarizing document: %v", err))
	}
	return textResult(fmt.Sprintf("Summary of %s:\n%s", url, strings.TrimSpace(summary)))
}
