package db

import (
	"context"
	"fmt"
	"time"

	"horse.fit/digest/internal/fingerprint"
)

// InsertField stores one language/kind-tagged field occurrence, idempotent on
// (entry, kind, lang). Same single-statement insert-or-read-back discipline as
// InsertEntry.
func (p *Pool) InsertField(ctx context.Context, entryID ID[Entry], kind, lang string, fp fingerprint.Fingerprint) (Persisted[Field], bool, error) {
	const q = `
WITH inserted AS (
	INSERT INTO digest.fields (entry_id, kind, lang, fingerprint)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (entry_id, kind, lang) DO NOTHING
	RETURNING field_id, entry_id, kind, lang, fingerprint, TRUE AS was_new
)
SELECT field_id, entry_id, kind, lang, fingerprint, was_new FROM inserted
UNION ALL
SELECT f.field_id, f.entry_id, f.kind, f.lang, f.fingerprint, FALSE
FROM digest.fields f
WHERE f.entry_id = $1 AND f.kind = $2 AND f.lang = $3
ORDER BY was_new DESC
LIMIT 1
`

	var field Field
	var wasNew bool
	err := p.QueryRow(ctx, q, entryID.Int64(), kind, lang, fp.Bytes()).
		Scan(&field.FieldID, &field.EntryID, &field.Kind, &field.Lang, &field.Fingerprint, &wasNew)
	if err != nil {
		return Persisted[Field]{}, false, fmt.Errorf("insert field entry_id=%d kind=%s lang=%s: %w", entryID.Int64(), kind, lang, err)
	}

	return Persisted[Field]{ID: ID[Field](field.FieldID), Value: field}, wasNew, nil
}

// FindFieldByEntryKindLang returns the field for one (entry, kind, lang) key,
// or nil when none exists. Absence is a normal answer here, not a failure;
// the lazy translation path uses it to decide whether work remains.
func (p *Pool) FindFieldByEntryKindLang(ctx context.Context, entryID ID[Entry], kind, lang string) (*Persisted[Field], error) {
	const q = `
SELECT field_id, entry_id, kind, lang, fingerprint
FROM digest.fields
WHERE entry_id = $1 AND kind = $2 AND lang = $3
`

	var field Field
	err := p.QueryRow(ctx, q, entryID.Int64(), kind, lang).
		Scan(&field.FieldID, &field.EntryID, &field.Kind, &field.Lang, &field.Fingerprint)
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find field entry_id=%d kind=%s lang=%s: %w", entryID.Int64(), kind, lang, err)
	}

	return &Persisted[Field]{ID: ID[Field](field.FieldID), Value: field}, nil
}

// ListFieldsByFingerprint returns every field occurrence that references one
// content-addressed value. This is the fan-out path: one translated text
// reaches every entry that shares the identical source text.
func (p *Pool) ListFieldsByFingerprint(ctx context.Context, fp fingerprint.Fingerprint) ([]Persisted[Field], error) {
	const q = `
SELECT field_id, entry_id, kind, lang, fingerprint
FROM digest.fields
WHERE fingerprint = $1
ORDER BY field_id
`

	rows, err := p.Query(ctx, q, fp.Bytes())
	if err != nil {
		return nil, fmt.Errorf("list fields by fingerprint: %w", err)
	}
	defer rows.Close()

	return scanFields(rows)
}

// ListFieldsByEntryKind returns every language variant of one field kind an
// entry carries, ordered by field id.
func (p *Pool) ListFieldsByEntryKind(ctx context.Context, entryID ID[Entry], kind string) ([]Persisted[Field], error) {
	const q = `
SELECT field_id, entry_id, kind, lang, fingerprint
FROM digest.fields
WHERE entry_id = $1 AND kind = $2
ORDER BY field_id
`

	rows, err := p.Query(ctx, q, entryID.Int64(), kind)
	if err != nil {
		return nil, fmt.Errorf("list fields entry_id=%d kind=%s: %w", entryID.Int64(), kind, err)
	}
	defer rows.Close()

	return scanFields(rows)
}

// ListUntranslatedFields returns source-language fields of one kind, scoped to
// entries published inside [dayStart, dayEnd), that have no sibling field in
// the target language yet.
func (p *Pool) ListUntranslatedFields(ctx context.Context, kind, targetLang string, dayStart, dayEnd time.Time) ([]Persisted[Field], error) {
	const q = `
SELECT f.field_id, f.entry_id, f.kind, f.lang, f.fingerprint
FROM digest.fields f
JOIN digest.entries e ON e.entry_id = f.entry_id
WHERE f.kind = $1
  AND f.lang <> $2
  AND e.published_at >= $3 AND e.published_at < $4
  AND NOT EXISTS (
	SELECT 1 FROM digest.fields t
	WHERE t.entry_id = f.entry_id AND t.kind = f.kind AND t.lang = $2
  )
ORDER BY f.field_id
`

	rows, err := p.Query(ctx, q, kind, targetLang, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("list untranslated fields kind=%s target=%s: %w", kind, targetLang, err)
	}
	defer rows.Close()

	return scanFields(rows)
}

func scanFields(rows *Rows) ([]Persisted[Field], error) {
	fields := make([]Persisted[Field], 0, 16)
	for rows.Next() {
		var field Field
		if err := rows.Scan(&field.FieldID, &field.EntryID, &field.Kind, &field.Lang, &field.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan field row: %w", err)
		}
		fields = append(fields, Persisted[Field]{ID: ID[Field](field.FieldID), Value: field})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field rows: %w", err)
	}
	return fields, nil
}
