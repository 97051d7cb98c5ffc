package playlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"servotv/internal/models"
)

func m3uServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestMergeCombinesSources(t *testing.T) {
	first := m3uServer(t, "#EXTM3U\n#EXTINF:-1,Channel One\nhttp://upstream/one.ts\n")
	second := m3uServer(t, "#EXTM3U\n#EXTINF:-1,Channel Two\nhttp://upstream/two.ts\n")

	aggregator := NewAggregator(2 * time.Second)
	merged := aggregator.Merge(context.Background(), []*models.PlaylistSource{
		{Name: "primary", MediaLink: first.URL},
		{Name: "backup", MediaLink: second.URL},
	})

	if !strings.HasPrefix(merged, "#EXTM3U\n") {
		t.Fatalf("merged document missing header: %q", merged)
	}
	if strings.Count(merged, "#EXTM3U") != 1 {
		t.Fatalf("merged document has %d headers, want 1:\n%s", strings.Count(merged, "#EXTM3U"), merged)
	}
	if !strings.Contains(merged, "# source: primary") || !strings.Contains(merged, "# source: backup") {
		t.Fatalf("merged document missing source delimiters:\n%s", merged)
	}
	if !strings.Contains(merged, "Channel One") || !strings.Contains(merged, "Channel Two") {
		t.Fatalf("merged document missing channels:\n%s", merged)
	}

	// Order follows the source list.
	if strings.Index(merged, "Channel One") > strings.Index(merged, "Channel Two") {
		t.Fatalf("sources merged out of order:\n%s", merged)
	}
}

func TestMergeSkipsFailedSource(t *testing.T) {
	healthy := m3uServer(t, "#EXTM3U\n#EXTINF:-1,Alive\nhttp://upstream/alive.ts\n")
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(failing.Close)

	aggregator := NewAggregator(2 * time.Second)
	merged := aggregator.Merge(context.Background(), []*models.PlaylistSource{
		{Name: "dead", MediaLink: failing.URL},
		{Name: "alive", MediaLink: healthy.URL},
	})

	if strings.Contains(merged, "# source: dead") {
		t.Fatalf("failed source appears in output:\n%s", merged)
	}
	if !strings.Contains(merged, "Alive") {
		t.Fatalf("healthy source missing from output:\n%s", merged)
	}
}

func TestMergeTimesOutSlowSource(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("#EXTM3U\n#EXTINF:-1,Slow\nhttp://upstream/slow.ts\n"))
	}))
	t.Cleanup(slow.Close)
	fast := m3uServer(t, "#EXTM3U\n#EXTINF:-1,Fast\nhttp://upstream/fast.ts\n")

	aggregator := NewAggregator(50 * time.Millisecond)
	merged := aggregator.Merge(context.Background(), []*models.PlaylistSource{
		{Name: "slow", MediaLink: slow.URL},
		{Name: "fast", MediaLink: fast.URL},
	})

	if strings.Contains(merged, "Slow") {
		t.Fatalf("slow source should have been skipped:\n%s", merged)
	}
	if !strings.Contains(merged, "Fast") {
		t.Fatalf("fast source missing from output:\n%s", merged)
	}
}

func TestMergeEmptySourceList(t *testing.T) {
	aggregator := NewAggregator(time.Second)

	if got := aggregator.Merge(context.Background(), nil); got != "#EXTM3U\n" {
		t.Fatalf("Merge(nil) = %q, want %q", got, "#EXTM3U\n")
	}
}

func TestStripHeader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "#EXTM3U\nline\n", want: "line\n"},
		{name: "with_attributes", input: "#EXTM3U url-tvg=\"http://x\"\nline\n", want: "line\n"},
		{name: "no_header", input: "#EXTINF:-1,Ch\nurl\n", want: "#EXTINF:-1,Ch\nurl\n"},
		{name: "header_only", input: "#EXTM3U", want: ""},
		{name: "leading_whitespace", input: "\n  #EXTM3U\nline\n", want: "line\n"},
		{name: "byte_order_mark", input: "\uFEFF#EXTM3U\nline\n", want: "line\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripHeader(tt.input); got != tt.want {
				t.Fatalf("stripHeader(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
