package main

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// HistoryFetcher retrieves recent conversation text so search_history can
// answer questions about earlier discussion.
type HistoryFetcher interface {
	FetchThread(ctx context.Context, chatID, rootID string, limit int) ([]string, error)
	FetchChannel(ctx context.Context, chatID string, limit int) ([]string, error)
}

type slackHistoryFetcher struct {
	api *slack.Client
}

func NewSlackHistoryFetcher(api *slack.Client) HistoryFetcher {
	return &slackHistoryFetcher{api: api}
}

func (f *slackHistoryFetcher) FetchThread(ctx context.Context, chatID, rootID string, limit int) ([]string, error) {
	if rootID == "" {
		return f.FetchChannel(ctx, chatID, limit)
	}
	msgs, _, _, err := f.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: chatID,
		Timestamp: rootID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching thread replies: %w", err)
	}
	var out []string
	for _, m := range msgs {
		if m.Text != "" {
			out = append(out, fmt.Sprintf("<@%s>: %s", m.User, m.Text))
		}
	}
	log.Printf("history thread chat=%s root=%s messages=%d", chatID, rootID, len(out))
	return out, nil
}

func (f *slackHistoryFetcher) FetchChannel(ctx context.Context, chatID string, limit int) ([]string, error) {
	resp, err := f.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: chatID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching channel history: %w", err)
	}
	var out []string
	// History arrives newest-first; reverse into reading order.
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		m := resp.Messages[i]
		if m.Text != "" {
			out = append(out, fmt.Sprintf("<@%s>: %s", m.User, m.Text))
		}
	}
	log.Printf("history channel chat=%s messages=%d", chatID, len(out))
	return out, nil
}
