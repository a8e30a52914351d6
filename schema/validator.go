package feedschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed feeds.schema.json
var feedsSchemaJSON string

// FeedsDocument is the validated feeds configuration file.
type FeedsDocument struct {
	Version string      `json:"version"`
	Feeds   []FeedEntry `json:"feeds"`
}

// FeedEntry is one configured feed.
type FeedEntry struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Language string `json:"language"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateFeedsDocument validates a feeds configuration document against the
// v1 schema and returns the decoded result.
func ValidateFeedsDocument(payload json.RawMessage) (*FeedsDocument, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode feeds JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize feeds JSON: %w", err)
	}

	var document FeedsDocument
	if err := json.Unmarshal(normalized, &document); err != nil {
		return nil, fmt.Errorf("unmarshal feeds document: %w", err)
	}

	if err := validateSemantics(&document); err != nil {
		return nil, err
	}

	return &document, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("feeds.schema.json", strings.NewReader(feedsSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("feeds.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("document contains trailing content")
	}

	return value, nil
}

func validateSemantics(document *FeedsDocument) error {
	if document == nil {
		return fmt.Errorf("document is nil")
	}
	if strings.TrimSpace(document.Version) != "v1" {
		return fmt.Errorf("version must be v1")
	}
	if len(document.Feeds) == 0 {
		return fmt.Errorf("at least one feed is required")
	}

	seen := make(map[string]struct{}, len(document.Feeds))
	for i, feed := range document.Feeds {
		if strings.TrimSpace(feed.Title) == "" {
			return fmt.Errorf("feeds[%d].title must not be empty", i)
		}
		if err := validateURI(fmt.Sprintf("feeds[%d].url", i), feed.URL); err != nil {
			return err
		}
		lang := strings.ToLower(strings.TrimSpace(feed.Language))
		if len(lang) != 2 {
			return fmt.Errorf("feeds[%d].language must be an ISO 639-1 code", i)
		}
		key := strings.TrimSpace(feed.URL)
		if _, exists := seen[key]; exists {
			return fmt.Errorf("feeds[%d].url is a duplicate: %s", i, key)
		}
		seen[key] = struct{}{}
	}

	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	return nil
}
