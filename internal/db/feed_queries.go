package db

import (
	"context"
	"fmt"
	"strings"
)

// UpsertFeed registers a configured feed, keyed by URL. Title and language
// follow the configuration file on every cycle.
func (p *Pool) UpsertFeed(ctx context.Context, title, url, language string) (Persisted[Feed], error) {
	if strings.TrimSpace(url) == "" {
		return Persisted[Feed]{}, fmt.Errorf("feed url is required")
	}

	const q = `
INSERT INTO digest.feeds (title, url, language)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE SET title = EXCLUDED.title, language = EXCLUDED.language
RETURNING feed_id
`

	var id int64
	if err := p.QueryRow(ctx, q, title, url, language).Scan(&id); err != nil {
		return Persisted[Feed]{}, fmt.Errorf("upsert feed url=%s: %w", url, err)
	}

	return Persisted[Feed]{
		ID: ID[Feed](id),
		Value: Feed{
			FeedID:   id,
			Title:    title,
			URL:      url,
			Language: language,
		},
	}, nil
}
