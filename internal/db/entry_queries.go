package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// InsertEntry stores one published item, idempotent on (feed, link). The
// insert ignores conflicts and reads the surviving row back in one statement,
// so concurrent crawlers of the same feed converge on one row. wasNew reports
// whether this call created the row.
func (p *Pool) InsertEntry(ctx context.Context, feedID ID[Feed], link string, publishedAt time.Time) (Persisted[Entry], bool, error) {
	if strings.TrimSpace(link) == "" {
		return Persisted[Entry]{}, false, fmt.Errorf("entry link is required")
	}

	const q = `
WITH inserted AS (
	INSERT INTO digest.entries (feed_id, link, published_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (feed_id, link) DO NOTHING
	RETURNING entry_id, feed_id, link, published_at, TRUE AS was_new
)
SELECT entry_id, feed_id, link, published_at, was_new FROM inserted
UNION ALL
SELECT e.entry_id, e.feed_id, e.link, e.published_at, FALSE
FROM digest.entries e
WHERE e.feed_id = $1 AND e.link = $2
ORDER BY was_new DESC
LIMIT 1
`

	var entry Entry
	var wasNew bool
	err := p.QueryRow(ctx, q, feedID.Int64(), link, publishedAt.UTC()).
		Scan(&entry.EntryID, &entry.FeedID, &entry.Link, &entry.PublishedAt, &wasNew)
	if err != nil {
		return Persisted[Entry]{}, false, fmt.Errorf("insert entry feed_id=%d link=%s: %w", feedID.Int64(), link, err)
	}

	return Persisted[Entry]{ID: ID[Entry](entry.EntryID), Value: entry}, wasNew, nil
}
