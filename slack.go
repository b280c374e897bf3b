package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const (
	actionConfirmRun    = "pending_confirm"
	actionConfirmCancel = "pending_cancel"
	confirmBlockID      = "pending_action"
)

func StartSlackBot(cfg Config, db *sql.DB, api *slack.Client, wf *Workflow, chat TextCompleter) error {
	client := socketmode.New(api)

	auth, err := api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	botUserID := auth.UserID
	log.Printf("slack bot authenticated user=%s", botUserID)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				go handleEventsAPI(api, db, cfg, wf, chat, botUserID, eventsAPIEvent)
			case socketmode.EventTypeInteractive:
				client.Ack(*evt.Request)
				callback, ok := evt.Data.(slack.InteractionCallback)
				if !ok {
					continue
				}
				go handleInteraction(api, db, wf, chat, callback)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func handleEventsAPI(api *slack.Client, db *sql.DB, cfg Config, wf *Workflow, chat TextCompleter, botUserID string, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		handleMessage(api, db, wf, chat, botUserID, ev)
	case *slackevents.AppMentionEvent:
		handleAppMention(api, db, wf, chat, botUserID, ev)
	case *slackevents.MemberJoinedChannelEvent:
		handleMemberJoined(api, cfg, ev)
	}
}

func handleMessage(api *slack.Client, db *sql.DB, wf *Workflow, chat TextCompleter, botUserID string, ev *slackevents.MessageEvent) {
	// Ignore bot echoes and channel housekeeping subtypes.
	if ev.BotID != "" || ev.User == "" || ev.User == botUserID || ev.SubType != "" {
		return
	}
	// Channel messages arrive through the app_mention event; handling them
	// here as well would process mentions twice. DMs only.
	if !strings.HasPrefix(ev.Channel, "D") {
		return
	}
	text := stripBotMention(ev.Text, botUserID)
	rootID := ev.ThreadTimeStamp
	if rootID == "" {
		rootID = ev.TimeStamp
	}
	runAndReply(api, db, wf, chat, text, ev.Channel, rootID, ev.User)
}

func handleAppMention(api *slack.Client, db *sql.DB, wf *Workflow, chat TextCompleter, botUserID string, ev *slackevents.AppMentionEvent) {
	if ev.User == "" || ev.User == botUserID {
		return
	}
	rootID := ev.ThreadTimeStamp
	if rootID == "" {
		rootID = ev.TimeStamp
	}
	runAndReply(api, db, wf, chat, stripBotMention(ev.Text, botUserID), ev.Channel, rootID, ev.User)
}

func stripBotMention(text, botUserID string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, fmt.Sprintf("<@%s>", botUserID), ""))
}

// runAndReply drives one message through the workflow and delivers the
// result into the originating thread. Every durable fact the workflow may
// need later travels inside the confirmation token, so nothing is cached
// between the fresh request and the button click.
func runAndReply(api *slack.Client, db *sql.DB, wf *Workflow, chat TextCompleter, text, channelID, rootID, userID string) {
	if text == "" {
		return
	}

	conv := ConversationContext{ChatID: channelID, ThreadRootID: rootID, UserID: userID}
	ref, err := LoadLinkedReference(db, channelID, rootID)
	if err != nil {
		log.Printf("linked reference load error chat=%s root=%s: %v", channelID, rootID, err)
	}
	conv.LinkedRef = ref

	out := wf.Run(context.Background(), text, conv)

	if out.Skip {
		replyChat(api, chat, text, channelID, rootID)
		return
	}

	if out.NeedsConfirmation {
		postConfirmation(api, out, channelID, rootID)
		return
	}

	postInThread(api, channelID, rootID, out.Response)
}

// replyChat is the conversational fallback for messages no handler claims.
func replyChat(api *slack.Client, chat TextCompleter, text, channelID, rootID string) {
	prompt := fmt.Sprintf("You are a helpful team assistant replying in a work chat. Keep the answer short and practical.\n\nUser message:\n%s", text)
	reply, err := chat.Complete(context.Background(), prompt, 0.7)
	if err != nil {
		log.Printf("chat fallback error chat=%s: %v", channelID, err)
		return
	}
	postInThread(api, channelID, rootID, reply)
}

func postConfirmation(api *slack.Client, out WorkflowOutput, channelID, rootID string) {
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, out.Response, false, false),
			nil, nil,
		),
		slack.NewActionBlock(confirmBlockID,
			slack.NewButtonBlockElement(
				actionConfirmRun,
				out.ConfirmationData,
				slack.NewTextBlockObject(slack.PlainTextType, "Confirm", false, false),
			).WithStyle(slack.StylePrimary),
			slack.NewButtonBlockElement(
				actionConfirmCancel,
				cancelMarker,
				slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
			).WithStyle(slack.StyleDanger),
		),
	}
	_, _, err := api.PostMessage(channelID,
		slack.MsgOptionTS(rootID),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		log.Printf("Error posting confirmation blocks chat=%s: %v", channelID, err)
		postInThread(api, channelID, rootID, out.Response)
	}
}

func handleInteraction(api *slack.Client, db *sql.DB, wf *Workflow, chat TextCompleter, cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions {
		return
	}
	if len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	act := cb.ActionCallback.BlockActions[0]
	if act.ActionID != actionConfirmRun && act.ActionID != actionConfirmCancel {
		return
	}

	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	rootID := cb.Message.ThreadTimestamp
	if rootID == "" {
		rootID = cb.Message.Timestamp
	}

	// The button value is the full token; replaying it through the workflow
	// is all the context the commit path needs.
	log.Printf("confirmation click action=%s user=%s chat=%s", act.ActionID, cb.User.ID, channelID)
	runAndReply(api, db, wf, chat, act.Value, channelID, rootID, cb.User.ID)

	// Retire the buttons so the same token is not replayed twice by accident.
	if cb.Message.Timestamp != "" {
		label := "Confirmed."
		if act.ActionID == actionConfirmCancel {
			label = "Cancelled."
		}
		_, _, _, err := api.UpdateMessage(channelID, cb.Message.Timestamp,
			slack.MsgOptionText(label, false))
		if err != nil {
			log.Printf("Error retiring confirmation buttons chat=%s: %v", channelID, err)
		}
	}
}

func handleMemberJoined(api *slack.Client, cfg Config, ev *slackevents.MemberJoinedChannelEvent) {
	log.Printf("member-joined user=%s channel=%s", ev.User, ev.Channel)

	teamName := cfg.TeamName
	if teamName == "" {
		teamName = "the team"
	}

	intro := fmt.Sprintf("Welcome to %s! I'm DeskBot — mention me and I'll file issues, link threads, and dig up context.\n\n"+
		"Here's how to get started:\n"+
		"• `/create <summary>, priority N, ddl <date>` — File an issue from this thread\n"+
		"• `/link #123` — Link this thread to an existing issue\n"+
		"• `/help` — See everything I can do",
		teamName,
	)

	_, _, err := api.PostMessage(ev.Channel,
		slack.MsgOptionText(intro, false),
		slack.MsgOptionPostEphemeral(ev.User),
	)
	if err != nil {
		log.Printf("member-joined intro error user=%s channel=%s: %v", ev.User, ev.Channel, err)
	}
}

func postInThread(api *slack.Client, channelID, rootID, text string) {
	if text == "" {
		return
	}
	_, _, err := api.PostMessage(channelID,
		slack.MsgOptionTS(rootID),
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		log.Printf("Error posting message chat=%s: %v", channelID, err)
	}
}

// slackNotifier delivers feedback-request DMs.
type slackNotifier struct {
	api *slack.Client
}

func NewSlackNotifier(api *slack.Client) Notifier {
	return &slackNotifier{api: api}
}

func (n *slackNotifier) DM(ctx context.Context, userID, text string) error {
	ch, _, _, err := n.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return fmt.Errorf("open DM with %s: %w", userID, err)
	}
	_, _, err = n.api.PostMessageContext(ctx, ch.ID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("DM %s: %w", userID, err)
	}
	return nil
}
