package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

// StartFeedbackDigestScheduler posts a periodic summary of feedback requests
// made through collect_feedback since the previous run.
// The schedule is a standard 5-field cron expression (minute hour day-of-month month day-of-week).
// Examples: "0 9 * * 1" (Mondays 9am), "0 17 * * 5" (Fridays 5pm).
func StartFeedbackDigestScheduler(cfg Config, db *sql.DB, api *slack.Client) {
	schedule := strings.TrimSpace(cfg.DigestSchedule)
	if schedule == "" {
		log.Println("Feedback digest disabled (digest_schedule not set)")
		return
	}
	if cfg.DigestChannelID == "" {
		log.Println("Feedback digest disabled (digest_channel_id not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid digest_schedule '%s': %v — feedback digest disabled", schedule, err)
		return
	}

	log.Printf("Feedback digest scheduled (cron: %s) channel=%s", schedule, cfg.DigestChannelID)

	go func() {
		last := time.Now().UTC()
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next feedback digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			entries, loadErr := GetFeedbackSince(db, last)
			last = time.Now().UTC()
			if loadErr != nil {
				log.Printf("Feedback digest load error: %v", loadErr)
				continue
			}
			if len(entries) == 0 {
				log.Println("Feedback digest: no new feedback requests")
				continue
			}

			msg := FormatFeedbackDigest(entries)
			_, _, postErr := api.PostMessage(cfg.DigestChannelID, slack.MsgOptionText(msg, false))
			if postErr != nil {
				log.Printf("Feedback digest post error: %v", postErr)
				continue
			}
			log.Printf("Feedback digest posted entries=%d", len(entries))
		}
	}()
}

func FormatFeedbackDigest(entries []FeedbackEntry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Feedback requests since last digest (%d)*\n", len(entries)))

	// Group by the teammate the feedback was asked of.
	byTarget := make(map[string][]FeedbackEntry)
	var order []string
	for _, e := range entries {
		if _, seen := byTarget[e.TargetUser]; !seen {
			order = append(order, e.TargetUser)
		}
		byTarget[e.TargetUser] = append(byTarget[e.TargetUser], e)
	}

	for _, target := range order {
		sb.WriteString(fmt.Sprintf("\n<@%s>:\n", target))
		for _, e := range byTarget[target] {
			line := fmt.Sprintf("• %s (asked by <@%s>", e.Topic, e.RequestedBy)
			if e.TaskRef != "" {
				line += fmt.Sprintf(", task %s", e.TaskRef)
			}
			line += ")"
			sb.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
