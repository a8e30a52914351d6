package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

func TestParseItem_ExtractsTitleAndDescription(t *testing.T) {
	t.Parallel()

	published := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	item := &gofeed.Item{
		Title:           "Regeringen presenterar ny budget",
		Link:            "https://example.se/nyheter/budget",
		Description:     "<p>Finansministern höll presskonferens.</p><p>Oppositionen kritisk.</p>",
		PublishedParsed: &published,
	}

	entry, err := parseItem(item, "sv")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if entry.Link != "https://example.se/nyheter/budget" {
		t.Fatalf("unexpected link: %q", entry.Link)
	}
	if !entry.PublishedAt.Equal(published) {
		t.Fatalf("unexpected publish time: %v", entry.PublishedAt)
	}
	if len(entry.Fields) != 2 {
		t.Fatalf("expected title + description fields, got %d", len(entry.Fields))
	}
	if entry.Fields[0].Kind != KindTitle || entry.Fields[0].Lang != "sv" {
		t.Fatalf("unexpected first field: %+v", entry.Fields[0])
	}
	if entry.Fields[1].Kind != KindDescription {
		t.Fatalf("unexpected second field kind: %s", entry.Fields[1].Kind)
	}
	if entry.Fields[1].Text != "Finansministern höll presskonferens.\nOppositionen kritisk." {
		t.Fatalf("unexpected description text: %q", entry.Fields[1].Text)
	}
}

func TestParseItem_ContentFieldWhenBothPresent(t *testing.T) {
	t.Parallel()

	published := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	item := &gofeed.Item{
		Title:           "Title",
		Link:            "https://example.se/a",
		Description:     "<p>Short summary.</p>",
		Content:         "<p>Full body first paragraph.</p><p>Second paragraph.</p>",
		PublishedParsed: &published,
	}

	entry, err := parseItem(item, "sv")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(entry.Fields) != 3 {
		t.Fatalf("expected title + description + content, got %d fields", len(entry.Fields))
	}
	if entry.Fields[2].Kind != KindContent {
		t.Fatalf("unexpected third field kind: %s", entry.Fields[2].Kind)
	}
}

func TestParseItem_MissingLink(t *testing.T) {
	t.Parallel()

	published := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	item := &gofeed.Item{Title: "No link", PublishedParsed: &published}

	if _, err := parseItem(item, "sv"); !errors.Is(err, errNoLink) {
		t.Fatalf("expected errNoLink, got %v", err)
	}
}

func TestParseItem_FallsBackToUpdatedDate(t *testing.T) {
	t.Parallel()

	updated := time.Date(2026, 8, 29, 18, 30, 0, 0, time.UTC)
	item := &gofeed.Item{
		Title:         "Updated only",
		Link:          "https://example.se/b",
		UpdatedParsed: &updated,
	}

	entry, err := parseItem(item, "sv")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !entry.PublishedAt.Equal(updated) {
		t.Fatalf("expected updated timestamp fallback, got %v", entry.PublishedAt)
	}
}

func TestCrawl_ConcurrentFeeds(t *testing.T) {
	t.Parallel()

	const document = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Nyheter</title>
    <item>
      <title>Regeringen presenterar ny budget</title>
      <link>https://example.se/nyheter/budget</link>
      <description>Finansministern höll presskonferens.</description>
      <pubDate>Sun, 30 Aug 2026 06:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, document)
	}))
	defer server.Close()

	crawler := NewRSSCrawler(zerolog.Nop())
	descriptor := Descriptor{Title: "A", URL: server.URL, Language: "sv"}

	// Ingestion crawls every configured feed from its own goroutine, so
	// parallel calls against one crawler must stay safe.
	var wg sync.WaitGroup
	errs := make([]error, 8)
	counts := make([]int, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries, err := crawler.Crawl(context.Background(), descriptor)
			errs[i] = err
			counts[i] = len(entries)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("crawl %d: %v", i, err)
		}
		if counts[i] != 1 {
			t.Fatalf("crawl %d returned %d entries, expected 1", i, counts[i])
		}
	}
}

func TestClassifyCrawlError_HTTPStatus(t *testing.T) {
	t.Parallel()

	err := classifyCrawlError("https://example.se/feed", gofeed.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError for HTTP status failure, got %T", err)
	}
}

func TestClassifyCrawlError_Malformed(t *testing.T) {
	t.Parallel()

	err := classifyCrawlError("https://example.se/feed", errors.New("Failed to detect feed type"))

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for malformed document, got %T", err)
	}
}

func TestExtractText_NoParagraphs(t *testing.T) {
	t.Parallel()

	if got := ExtractText("<div>Bare   text</div>"); got != "Bare text" {
		t.Fatalf("unexpected extraction: %q", got)
	}
	if got := ExtractText("   "); got != "" {
		t.Fatalf("expected empty extraction for blank input, got %q", got)
	}
}
