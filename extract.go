package main

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Pure parameter extractors. Every function here is total: no panics, no
// errors — absence is reported with an ok flag so handlers can degrade into
// a usage message instead of crashing.

var (
	isoDateRegex      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayRegex     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`)
	hashNumberRegex   = regexp.MustCompile(`#(\d+)`)
	bareNumberRegex   = regexp.MustCompile(`\b(\d{1,10})\b`)
	slackMentionRegex = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)
	atMentionRegex    = regexp.MustCompile(`@([\p{L}\p{N}_.\-]+)`)
	anyURLRegex       = regexp.MustCompile(`https?://[^\s<>）)\]]+`)
	// Known document hosts: Feishu / Lark doc, docx and wiki pages.
	docURLRegex = regexp.MustCompile(`https?://[\w\-]+\.(?:feishu\.cn|larksuite\.com)/(?:docx|docs|wiki)/[\w\-]+`)
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"日":         time.Sunday,
	"天":         time.Sunday,
	"一":         time.Monday,
	"二":         time.Tuesday,
	"三":         time.Wednesday,
	"四":         time.Thursday,
	"五":         time.Friday,
	"六":         time.Saturday,
}

var (
	thisWeekdayRegex = regexp.MustCompile(`(?i)\bthis\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	nextWeekdayRegex = regexp.MustCompile(`(?i)\bnext\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	bareWeekdayRegex = regexp.MustCompile(`(?i)\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	cjkWeekdayRegex  = regexp.MustCompile(`(下?)(?:周|星期)([日天一二三四五六])`)
)

// ResolveRelativeDate turns a date expression inside text into an absolute
// YYYY-MM-DD date relative to now. Specificity order is a contract: explicit
// ISO date > month/day > relative keyword, and once a more specific pattern
// matches, less specific scanning is skipped entirely.
func ResolveRelativeDate(text string, now time.Time) (string, bool) {
	// URL path segments like /4/5 would read as month/day.
	text = anyURLRegex.ReplaceAllString(text, " ")

	if m := isoDateRegex.FindStringSubmatch(text); m != nil {
		if t, err := time.ParseInLocation("2006-01-02", m[0], now.Location()); err == nil {
			return t.Format("2006-01-02"), true
		}
		return "", false
	}

	if m := monthDayRegex.FindStringSubmatch(text); m != nil {
		var month, day int
		fmt.Sscanf(m[0], "%d/%d", &month, &day)
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			t := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
			return t.Format("2006-01-02"), true
		}
		return "", false
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "day after tomorrow"), strings.Contains(text, "后天"):
		return now.AddDate(0, 0, 2).Format("2006-01-02"), true
	case strings.Contains(lower, "tomorrow"), strings.Contains(text, "明天"):
		return now.AddDate(0, 0, 1).Format("2006-01-02"), true
	case strings.Contains(lower, "today"), strings.Contains(text, "今天"):
		return now.Format("2006-01-02"), true
	}

	if m := nextWeekdayRegex.FindStringSubmatch(text); m != nil {
		// "next wednesday" on a Wednesday means a week out, never today.
		return strictNextWeekday(now, weekdayNames[strings.ToLower(m[1])]).Format("2006-01-02"), true
	}
	if m := thisWeekdayRegex.FindStringSubmatch(text); m != nil {
		return upcomingWeekday(now, weekdayNames[strings.ToLower(m[1])]).Format("2006-01-02"), true
	}
	if m := cjkWeekdayRegex.FindStringSubmatch(text); m != nil {
		wd := weekdayNames[m[2]]
		if m[1] == "下" {
			return weekdayOfNextWeek(now, wd).Format("2006-01-02"), true
		}
		return upcomingWeekday(now, wd).Format("2006-01-02"), true
	}
	if m := bareWeekdayRegex.FindStringSubmatch(text); m != nil {
		return strictNextWeekday(now, weekdayNames[strings.ToLower(m[1])]).Format("2006-01-02"), true
	}

	return "", false
}

// strictNextWeekday returns the next occurrence of wd strictly after today.
func strictNextWeekday(now time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}

// upcomingWeekday returns the next occurrence of wd, allowing today.
func upcomingWeekday(now time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	return now.AddDate(0, 0, days)
}

// weekdayOfNextWeek returns wd of the following Monday-based week ("下周三").
func weekdayOfNextWeek(now time.Time, wd time.Weekday) time.Time {
	daysToMonday := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	if daysToMonday == 0 {
		daysToMonday = 7
	}
	offset := (int(wd) - int(time.Monday) + 7) % 7
	return now.AddDate(0, 0, daysToMonday+offset)
}

// ExtractMentions returns the mentioned user tokens in order of appearance.
// Slack-style <@U123> mentions yield the user ID; plain @name mentions yield
// the name. Duplicates are dropped.
func ExtractMentions(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, m := range slackMentionRegex.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	stripped := slackMentionRegex.ReplaceAllString(text, " ")
	for _, m := range atMentionRegex.FindAllStringSubmatch(stripped, -1) {
		add(m[1])
	}
	return out
}

// ExtractIssueNumber finds the first item reference in text, preferring
// an explicit "#N" over a bare integer token.
func ExtractIssueNumber(text string) (string, bool) {
	if m := hashNumberRegex.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := bareNumberRegex.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}

// ExtractURL finds the first URL of any host.
func ExtractURL(text string) (string, bool) {
	if m := anyURLRegex.FindString(text); m != "" {
		return strings.TrimRight(m, ".,;"), true
	}
	return "", false
}

// ExtractDocURL finds the first URL on a known document host.
func ExtractDocURL(text string) (string, bool) {
	if m := docURLRegex.FindString(text); m != "" {
		return m, true
	}
	return "", false
}
