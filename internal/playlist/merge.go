// Package playlist fetches external M3U sources and merges them into one
// document. Aggregation is tolerant: a dead upstream is skipped, never fatal.
package playlist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"servotv/internal/models"
)

const (
	header = "#EXTM3U"

	// maxSourceBytes caps a single upstream body so one misbehaving source
	// cannot exhaust memory.
	maxSourceBytes = 32 << 20
)

type Aggregator struct {
	client        *http.Client
	sourceTimeout time.Duration
}

func NewAggregator(sourceTimeout time.Duration) *Aggregator {
	return &Aggregator{
		client: &http.Client{
			Timeout: sourceTimeout,
		},
		sourceTimeout: sourceTimeout,
	}
}

// Merge fetches every source concurrently and concatenates the bodies under a
// single header. Per-source headers are stripped and a comment names each
// segment's origin. Zero sources, or all sources failing, still yields a
// minimal valid document so players degrade to an empty channel list.
func (a *Aggregator) Merge(ctx context.Context, sources []*models.PlaylistSource) string {
	bodies := make([]string, len(sources))

	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(i int, source *models.PlaylistSource) {
			defer wg.Done()

			body, err := a.fetch(ctx, source.MediaLink)
			if err != nil {
				slog.Warn("skipping unreachable playlist source",
					"source", source.Name, "url", source.MediaLink, "error", err)
				return
			}
			bodies[i] = body
		}(i, source)
	}
	wg.Wait()

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	for i, body := range bodies {
		if body == "" {
			continue
		}
		segment := stripHeader(body)
		b.WriteString(fmt.Sprintf("# source: %s\n", sources[i].Name))
		b.WriteString(segment)
		if !strings.HasSuffix(segment, "\n") {
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (a *Aggregator) fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.sourceTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return "", fmt.Errorf("reading source body: %w", err)
	}

	return string(body), nil
}

// stripHeader drops a leading #EXTM3U line (with any attributes) so the
// merged document carries exactly one.
func stripHeader(body string) string {
	trimmed := strings.TrimLeft(body, "\uFEFF \t\r\n")
	if !strings.HasPrefix(trimmed, header) {
		return body
	}

	rest := trimmed[len(header):]
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		return rest[idx+1:]
	}
	return ""
}
