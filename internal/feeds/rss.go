package feeds

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

const crawlUserAgent = "digest news crawler"

// RSSCrawler parses RSS/Atom feeds into entries with extracted text fields.
// Malformed items are logged and skipped; the rest of the feed still counts.
type RSSCrawler struct {
	logger zerolog.Logger
}

func NewRSSCrawler(logger zerolog.Logger) *RSSCrawler {
	return &RSSCrawler{logger: logger}
}

func (c *RSSCrawler) Crawl(ctx context.Context, feed Descriptor) ([]Entry, error) {
	// gofeed's Parser initializes its format translators lazily on first
	// parse, so one instance must not be shared across concurrent crawls.
	parser := gofeed.NewParser()
	parser.UserAgent = crawlUserAgent

	parsed, err := parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, classifyCrawlError(feed.URL, err)
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entry, err := parseItem(item, feed.Language)
		if err != nil {
			c.logger.Debug().
				Err(err).
				Str("feed", feed.Title).
				Str("item", item.Link).
				Msg("skipping malformed feed item")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var (
	errNoLink  = errors.New("item has no link")
	errNoDate  = errors.New("item has no publish date")
	errNoTitle = errors.New("item has no title")
)

func parseItem(item *gofeed.Item, lang string) (Entry, error) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		return Entry{}, errNoLink
	}

	publishedAt := itemTimestamp(item)
	if publishedAt.IsZero() {
		return Entry{}, errNoDate
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return Entry{}, errNoTitle
	}

	fields := []FieldValue{
		{Kind: KindTitle, Lang: lang, Text: title},
	}
	if description := ExtractText(firstNonEmpty(item.Description, item.Content)); description != "" {
		fields = append(fields, FieldValue{Kind: KindDescription, Lang: lang, Text: description})
	}
	if item.Description != "" && item.Content != "" {
		if content := ExtractText(item.Content); content != "" {
			fields = append(fields, FieldValue{Kind: KindContent, Lang: lang, Text: content})
		}
	}

	return Entry{
		Link:        link,
		PublishedAt: publishedAt.UTC(),
		Fields:      fields,
	}, nil
}

func itemTimestamp(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func classifyCrawlError(feedURL string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &FetchError{URL: feedURL, Err: err}
	}
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return &FetchError{URL: feedURL, Err: err}
	}
	return &ParseError{URL: feedURL, Err: err}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
