package feeds

import (
	"fmt"
	"os"
	"strings"

	feedschema "horse.fit/digest/schema"
)

// LoadDescriptors reads and validates the feeds configuration file and
// returns the configured feed descriptors.
func LoadDescriptors(path string) ([]Descriptor, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file %q: %w", path, err)
	}

	document, err := feedschema.ValidateFeedsDocument(payload)
	if err != nil {
		return nil, fmt.Errorf("validate feeds file %q: %w", path, err)
	}

	descriptors := make([]Descriptor, 0, len(document.Feeds))
	for _, feed := range document.Feeds {
		descriptors = append(descriptors, Descriptor{
			Title:    strings.TrimSpace(feed.Title),
			URL:      strings.TrimSpace(feed.URL),
			Language: strings.ToLower(strings.TrimSpace(feed.Language)),
		})
	}
	return descriptors, nil
}
