package feeds

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FieldKind names one extracted text attribute of a news entry.
type FieldKind string

const (
	KindTitle       FieldKind = "title"
	KindDescription FieldKind = "description"
	KindContent     FieldKind = "content"
)

// ParseFieldKind validates a field kind read from configuration or storage.
func ParseFieldKind(raw string) (FieldKind, error) {
	switch kind := FieldKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case KindTitle, KindDescription, KindContent:
		return kind, nil
	default:
		return "", fmt.Errorf("invalid field kind: %q", raw)
	}
}

// Descriptor identifies one configured feed.
type Descriptor struct {
	Title    string
	URL      string
	Language string // ISO 639-1 source language of the feed
}

// FieldValue is one extracted text attribute of a crawled entry.
type FieldValue struct {
	Kind FieldKind
	Lang string
	Text string
}

// Entry is one published item returned by a crawl.
type Entry struct {
	Link        string
	PublishedAt time.Time
	Fields      []FieldValue
}

// Crawler fetches and parses one feed. Implementations drop individual
// malformed entries; a returned error means the whole feed contributed
// nothing this cycle.
type Crawler interface {
	Crawl(ctx context.Context, feed Descriptor) ([]Entry, error)
}

// FetchError reports a network failure while retrieving a feed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a malformed feed document.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
