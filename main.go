package main

import (
	"log"
	"time"

	"github.com/slack-go/slack"
)

const trackerSystem = "github"

func main() {
	cfg := LoadConfig()

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)

	completer := NewTextCompleter(cfg)
	tracker := NewGHTracker(cfg.TrackerBin, cfg.TrackerRepo, time.Duration(cfg.TrackerTimeoutSeconds)*time.Second)
	store := NewSQLiteRefStore(db)
	history := NewSlackHistoryFetcher(api)
	docs := NewHTTPDocReader(cfg.DocAuthToken)
	tasks := NewHTTPTaskClient(cfg.TaskAPIURL, cfg.TaskAPIToken)
	notifier := NewSlackNotifier(api)

	commands := NewCommandTable()
	if cfg.CommandAliasPath != "" {
		aliases, err := LoadCommandAliases(cfg.CommandAliasPath)
		if err != nil {
			log.Fatalf("Failed to load command aliases: %v", err)
		}
		commands.ApplyAliases(aliases)
	}

	handlers := map[Intent]Handler{
		IntentCreateItem:       NewCreateHandler(tracker, store, trackerSystem),
		IntentListItems:        NewListHandler(tracker),
		IntentCloseItem:        NewCloseHandler(tracker),
		IntentAssignSelf:       NewAssignHandler(tracker, cfg.TrackerLogins),
		IntentLinkExisting:     NewLinkHandler(tracker, store, trackerSystem),
		IntentSummarizeItem:    NewSummarizeHandler(tracker, completer),
		IntentUpdateLinkedItem: NewUpdateHandler(tracker),
		IntentReviewChanges:    NewReviewHandler(tracker),
		IntentSearchHistory:    NewHistoryHandler(history, completer),
		IntentReadDocument:     NewDocHandler(docs, completer),
		IntentCollectFeedback:  NewFeedbackHandler(tasks, notifier, db),
	}

	classifier := NewClassifier(commands, completer)
	router := NewRouter(handlers, NewHelpHandler(cfg.TeamName))
	wf := NewWorkflow(classifier, router)

	StartFeedbackDigestScheduler(cfg, db, api)

	log.Println("Starting DeskBot...")
	if err := StartSlackBot(cfg, db, api, wf, completer); err != nil {
		log.Fatalf("Slack bot error: %v", err)
	}
}
