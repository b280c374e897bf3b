package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
)

// DocReader fetches the text of a document on a known host.
type DocReader interface {
	Read(ctx context.Context, url string) (string, error)
}

const maxDocBytes = 256 * 1024

type httpDocReader struct {
	client    *http.Client
	authToken string
}

func NewHTTPDocReader(authToken string) DocReader {
	return &httpDocReader{client: externalHTTPClient, authToken: authToken}
}

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
var blankLinesRegex = regexp.MustCompile(`\n{3,}`)

func (d *httpDocReader) Read(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("creating doc request: %w", err)
	}
	if d.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.authToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("document fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocBytes))
	if err != nil {
		return "", fmt.Errorf("reading document body: %w", err)
	}

	text := htmlTagRegex.ReplaceAllString(string(body), " ")
	text = blankLinesRegex.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	log.Printf("docs fetched url=%s bytes=%d", url, len(body))
	return text, nil
}
