package main

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// IssueTracker executes one opaque tracker command. The workflow core never
// interprets the command text; handlers generate it and read the result.
type IssueTracker interface {
	Run(ctx context.Context, command string) CommandResult
}

// ghTracker shells out to the GitHub CLI. Commands arrive as a single string
// ("issue create --title \"Fix login\" ..."), are split respecting double
// quotes, and get the configured --repo appended for issue/pr commands.
type ghTracker struct {
	bin     string
	repo    string
	timeout time.Duration
}

func NewGHTracker(bin, repo string, timeout time.Duration) IssueTracker {
	if bin == "" {
		bin = "gh"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ghTracker{bin: bin, repo: repo, timeout: timeout}
}

func (g *ghTracker) Run(ctx context.Context, command string) CommandResult {
	args := splitCommand(command)
	if len(args) == 0 {
		return CommandResult{Success: false, Error: "empty tracker command"}
	}
	if g.repo != "" && (args[0] == "issue" || args[0] == "pr") {
		args = append(args, "--repo", g.repo)
	}

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, g.bin, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Printf("tracker run cmd=%s args=%d", args[0], len(args))
	err := cmd.Run()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		log.Printf("tracker error cmd=%s: %s", args[0], msg)
		return CommandResult{Success: false, Output: stdout.String(), Error: msg}
	}
	return CommandResult{Success: true, Output: strings.TrimSpace(stdout.String())}
}

// splitCommand splits on whitespace while keeping double-quoted segments
// together, so handler-built titles with spaces survive.
func splitCommand(command string) []string {
	var args []string
	var cur strings.Builder
	inQuote := false
	for _, r := range command {
		switch {
		case r == '"':
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}

func quoteArg(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `'`) + `"`
}

type issueRow struct {
	Number   int64
	Title    string
	State    string
	Assignee string
	URL      string
}

// parseIssueList reads `gh issue list --json number,title,state,assignees,url`
// output.
func parseIssueList(output string) []issueRow {
	// gjson iterates once over a scalar; non-JSON output (a CLI error blurb)
	// would fabricate a phantom row without these guards.
	if !gjson.Valid(output) {
		return nil
	}
	parsed := gjson.Parse(output)
	if !parsed.IsArray() {
		return nil
	}
	var rows []issueRow
	parsed.ForEach(func(_, v gjson.Result) bool {
		row := issueRow{
			Number: v.Get("number").Int(),
			Title:  v.Get("title").String(),
			State:  v.Get("state").String(),
			URL:    v.Get("url").String(),
		}
		if a := v.Get("assignees.0.login"); a.Exists() {
			row.Assignee = a.String()
		}
		rows = append(rows, row)
		return true
	})
	return rows
}

type issueDetail struct {
	Number   int64
	Title    string
	Body     string
	State    string
	URL      string
	Comments []string
}

// parseIssueView reads `gh issue view N --json title,body,state,url,comments`.
func parseIssueView(output string) issueDetail {
	if !gjson.Valid(output) {
		return issueDetail{}
	}
	v := gjson.Parse(output)
	if !v.IsObject() {
		return issueDetail{}
	}
	d := issueDetail{
		Number: v.Get("number").Int(),
		Title:  v.Get("title").String(),
		Body:   v.Get("body").String(),
		State:  v.Get("state").String(),
		URL:    v.Get("url").String(),
	}
	v.Get("comments").ForEach(func(_, c gjson.Result) bool {
		body := strings.TrimSpace(c.Get("body").String())
		if body != "" {
			d.Comments = append(d.Comments, body)
		}
		return true
	})
	return d
}

type prRow struct {
	Number int64
	Title  string
	Author string
	URL    string
}

// parsePRList reads `gh pr list --json number,title,author,url` output.
func parsePRList(output string) []prRow {
	if !gjson.Valid(output) {
		return nil
	}
	parsed := gjson.Parse(output)
	if !parsed.IsArray() {
		return nil
	}
	var rows []prRow
	parsed.ForEach(func(_, v gjson.Result) bool {
		rows = append(rows, prRow{
			Number: v.Get("number").Int(),
			Title:  v.Get("title").String(),
			Author: v.Get("author.login").String(),
			URL:    v.Get("url").String(),
		})
		return true
	})
	return rows
}

// parseCreatedIssueURL pulls the item URL out of `gh issue create` output,
// which prints the new issue URL as its last line.
func parseCreatedIssueURL(output string) (url, number string) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			url = line
			if idx := strings.LastIndex(line, "/"); idx >= 0 && idx+1 < len(line) {
				tail := line[idx+1:]
				if _, ok := ExtractIssueNumber("#" + tail); ok {
					number = tail
				}
			}
			return url, number
		}
	}
	return "", ""
}

func issueRef(number string) string {
	return fmt.Sprintf("#%s", number)
}
