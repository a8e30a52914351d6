package db

import (
	"context"
	"fmt"
	"time"
)

// InsertReport persists one clustering run's metadata.
func (p *Pool) InsertReport(ctx context.Context, tolerance float64, minPoints int, score float64, rows, dims int) (Persisted[Report], error) {
	const q = `
INSERT INTO digest.reports (tolerance, min_points, score, "rows", dims)
VALUES ($1, $2, $3, $4, $5)
RETURNING report_id, created_at
`

	report := Report{
		Tolerance: tolerance,
		MinPoints: minPoints,
		Score:     score,
		Rows:      rows,
		Dims:      dims,
	}
	if err := p.QueryRow(ctx, q, tolerance, minPoints, score, rows, dims).Scan(&report.ReportID, &report.CreatedAt); err != nil {
		return Persisted[Report]{}, fmt.Errorf("insert report: %w", err)
	}

	return Persisted[Report]{ID: ID[Report](report.ReportID), Value: report}, nil
}

// InsertReportGroup persists one cluster and its membership in a single
// transaction. The representative must be one of the members, and every member
// must reference an embedding that exists; any violation rolls the whole group
// back.
func (p *Pool) InsertReportGroup(ctx context.Context, reportID ID[Report], memberIDs []ID[Embedding], representative ID[Embedding]) (Persisted[ReportGroup], error) {
	if len(memberIDs) == 0 {
		return Persisted[ReportGroup]{}, fmt.Errorf("report group has no members")
	}
	isMember := false
	for _, id := range memberIDs {
		if id == representative {
			isMember = true
			break
		}
	}
	if !isMember {
		return Persisted[ReportGroup]{}, fmt.Errorf("representative embedding_id=%d is not a group member", representative.Int64())
	}

	tx, err := p.BeginTx(ctx)
	if err != nil {
		return Persisted[ReportGroup]{}, fmt.Errorf("begin report group transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const insertGroup = `
INSERT INTO digest.report_groups (report_id, representative_embedding_id)
VALUES ($1, $2)
RETURNING report_group_id, created_at
`

	group := ReportGroup{
		ReportID:                  reportID.Int64(),
		RepresentativeEmbeddingID: representative.Int64(),
	}
	if err := tx.QueryRow(ctx, insertGroup, reportID.Int64(), representative.Int64()).Scan(&group.ReportGroupID, &group.CreatedAt); err != nil {
		return Persisted[ReportGroup]{}, fmt.Errorf("insert report group report_id=%d: %w", reportID.Int64(), err)
	}

	const insertMember = `
INSERT INTO digest.report_group_members (report_group_id, embedding_id)
SELECT $1, $2
WHERE EXISTS (SELECT 1 FROM digest.embeddings emb WHERE emb.embedding_id = $2)
`

	for _, memberID := range memberIDs {
		tag, err := tx.Exec(ctx, insertMember, group.ReportGroupID, memberID.Int64())
		if err != nil {
			return Persisted[ReportGroup]{}, fmt.Errorf("insert report group member embedding_id=%d: %w", memberID.Int64(), err)
		}
		if tag.RowsAffected() != 1 {
			return Persisted[ReportGroup]{}, fmt.Errorf("report group member embedding_id=%d does not reference a stored embedding", memberID.Int64())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Persisted[ReportGroup]{}, fmt.Errorf("commit report group: %w", err)
	}

	return Persisted[ReportGroup]{ID: ID[ReportGroup](group.ReportGroupID), Value: group}, nil
}

// FindLatestReport returns the most recently created report.
func (p *Pool) FindLatestReport(ctx context.Context) (Persisted[Report], error) {
	const q = `
SELECT report_id, tolerance, min_points, score, "rows", dims, created_at
FROM digest.reports
ORDER BY created_at DESC, report_id DESC
LIMIT 1
`

	return p.scanReport(p.QueryRow(ctx, q))
}

// FindReportForDay returns the latest report created inside [dayStart, dayEnd).
func (p *Pool) FindReportForDay(ctx context.Context, dayStart, dayEnd time.Time) (Persisted[Report], error) {
	const q = `
SELECT report_id, tolerance, min_points, score, "rows", dims, created_at
FROM digest.reports
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at DESC, report_id DESC
LIMIT 1
`

	return p.scanReport(p.QueryRow(ctx, q, dayStart.UTC(), dayEnd.UTC()))
}

func (p *Pool) scanReport(row *Row) (Persisted[Report], error) {
	var report Report
	err := row.Scan(&report.ReportID, &report.Tolerance, &report.MinPoints, &report.Score, &report.Rows, &report.Dims, &report.CreatedAt)
	if err != nil {
		return Persisted[Report]{}, err
	}
	return Persisted[Report]{ID: ID[Report](report.ReportID), Value: report}, nil
}

// ListReportGroups returns the groups of one report, largest first.
func (p *Pool) ListReportGroups(ctx context.Context, reportID ID[Report]) ([]Persisted[ReportGroup], error) {
	const q = `
SELECT rg.report_group_id, rg.report_id, rg.representative_embedding_id, rg.created_at
FROM digest.report_groups rg
LEFT JOIN digest.report_group_members m ON m.report_group_id = rg.report_group_id
WHERE rg.report_id = $1
GROUP BY rg.report_group_id, rg.report_id, rg.representative_embedding_id, rg.created_at
ORDER BY COUNT(m.embedding_id) DESC, rg.report_group_id
`

	rows, err := p.Query(ctx, q, reportID.Int64())
	if err != nil {
		return nil, fmt.Errorf("list report groups report_id=%d: %w", reportID.Int64(), err)
	}
	defer rows.Close()

	groups := make([]Persisted[ReportGroup], 0, 8)
	for rows.Next() {
		var group ReportGroup
		if err := rows.Scan(&group.ReportGroupID, &group.ReportID, &group.RepresentativeEmbeddingID, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report group row: %w", err)
		}
		groups = append(groups, Persisted[ReportGroup]{ID: ID[ReportGroup](group.ReportGroupID), Value: group})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report group rows: %w", err)
	}
	return groups, nil
}

// ListGroupMemberEmbeddingIDs returns the embedding ids of one group's members.
func (p *Pool) ListGroupMemberEmbeddingIDs(ctx context.Context, groupID ID[ReportGroup]) ([]ID[Embedding], error) {
	const q = `
SELECT embedding_id
FROM digest.report_group_members
WHERE report_group_id = $1
ORDER BY embedding_id
`

	rows, err := p.Query(ctx, q, groupID.Int64())
	if err != nil {
		return nil, fmt.Errorf("list group members report_group_id=%d: %w", groupID.Int64(), err)
	}
	defer rows.Close()

	ids := make([]ID[Embedding], 0, 8)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group member row: %w", err)
		}
		ids = append(ids, ID[Embedding](id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group member rows: %w", err)
	}
	return ids, nil
}

// GroupStory is a read model for rendering one group member: the entry it came
// from plus its display-language title.
type GroupStory struct {
	EmbeddingID    int64     `json:"embedding_id"`
	EntryID        int64     `json:"entry_id"`
	Link           string    `json:"link"`
	PublishedAt    time.Time `json:"published_at"`
	Title          string    `json:"title"`
	Representative bool      `json:"representative"`
}

// ListGroupStories resolves one group's members to their entries and
// display-language titles. Members whose title translation is still missing
// are returned with an empty title rather than dropped.
func (p *Pool) ListGroupStories(ctx context.Context, groupID ID[ReportGroup], displayLang string) ([]GroupStory, error) {
	const q = `
SELECT DISTINCT
	m.embedding_id,
	e.entry_id,
	e.link,
	e.published_at,
	COALESCE(ttv.text, '') AS title,
	(m.embedding_id = rg.representative_embedding_id) AS representative
FROM digest.report_group_members m
JOIN digest.report_groups rg ON rg.report_group_id = m.report_group_id
JOIN digest.embeddings emb ON emb.embedding_id = m.embedding_id
JOIN digest.fields f ON f.fingerprint = emb.fingerprint
JOIN digest.entries e ON e.entry_id = f.entry_id
LEFT JOIN digest.fields tf
	ON tf.entry_id = e.entry_id AND tf.kind = 'title' AND tf.lang = $2
LEFT JOIN digest.text_values ttv ON ttv.fingerprint = tf.fingerprint
WHERE m.report_group_id = $1
ORDER BY representative DESC, e.published_at DESC, e.entry_id
`

	rows, err := p.Query(ctx, q, groupID.Int64(), displayLang)
	if err != nil {
		return nil, fmt.Errorf("list group stories report_group_id=%d: %w", groupID.Int64(), err)
	}
	defer rows.Close()

	stories := make([]GroupStory, 0, 8)
	for rows.Next() {
		var story GroupStory
		if err := rows.Scan(&story.EmbeddingID, &story.EntryID, &story.Link, &story.PublishedAt, &story.Title, &story.Representative); err != nil {
			return nil, fmt.Errorf("scan group story row: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group story rows: %w", err)
	}
	return stories, nil
}
