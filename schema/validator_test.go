package feedschema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateFeedsDocument_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"version":"v1",
		"feeds":[
			{"title":"SVT Nyheter","url":"https://www.svt.se/rss.xml","language":"sv"},
			{"title":"Dagens Nyheter","url":"https://www.dn.se/rss/","language":"sv"}
		]
	}`)

	document, err := ValidateFeedsDocument(payload)
	if err != nil {
		t.Fatalf("expected document to be valid, got error: %v", err)
	}

	if len(document.Feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(document.Feeds))
	}
	if document.Feeds[0].Title != "SVT Nyheter" {
		t.Fatalf("unexpected first feed title: %q", document.Feeds[0].Title)
	}
}

func TestValidateFeedsDocument_MissingLanguage(t *testing.T) {
	payload := json.RawMessage(`{
		"version":"v1",
		"feeds":[
			{"title":"SVT Nyheter","url":"https://www.svt.se/rss.xml"}
		]
	}`)

	if _, err := ValidateFeedsDocument(payload); err == nil {
		t.Fatalf("expected validation to fail for missing language")
	}
}

func TestValidateFeedsDocument_EmptyFeeds(t *testing.T) {
	payload := json.RawMessage(`{"version":"v1","feeds":[]}`)

	if _, err := ValidateFeedsDocument(payload); err == nil {
		t.Fatalf("expected validation to fail for empty feeds array")
	}
}

func TestValidateFeedsDocument_DuplicateURL(t *testing.T) {
	payload := json.RawMessage(`{
		"version":"v1",
		"feeds":[
			{"title":"A","url":"https://example.com/feed","language":"sv"},
			{"title":"B","url":"https://example.com/feed","language":"sv"}
		]
	}`)

	_, err := ValidateFeedsDocument(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for duplicate feed url")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate url error, got: %v", err)
	}
}

func TestValidateFeedsDocument_BadVersion(t *testing.T) {
	payload := json.RawMessage(`{
		"version":"v2",
		"feeds":[
			{"title":"A","url":"https://example.com/feed","language":"sv"}
		]
	}`)

	if _, err := ValidateFeedsDocument(payload); err == nil {
		t.Fatalf("expected validation to fail for unsupported version")
	}
}

func TestValidateFeedsDocument_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"version":"v1","feeds":[{"title":"A","url":"https://example.com/feed","language":"sv"}]} extra`)

	if _, err := ValidateFeedsDocument(payload); err == nil {
		t.Fatalf("expected validation to fail for trailing content")
	}
}
