package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"horse.fit/digest/internal/fingerprint"
)

// Floats decodes the stored JSON vector.
func (e Embedding) Floats() ([]float64, error) {
	var vector []float64
	if err := json.Unmarshal([]byte(e.Vector), &vector); err != nil {
		return nil, fmt.Errorf("decode embedding vector embedding_id=%d: %w", e.EmbeddingID, err)
	}
	if len(vector) != e.Size {
		return nil, fmt.Errorf("embedding_id=%d stored size %d does not match vector length %d", e.EmbeddingID, e.Size, len(vector))
	}
	return vector, nil
}

// InsertEmbedding stores a content-addressed vector, idempotent on its
// fingerprint. The insert only fires when a text value with the same
// fingerprint exists; an embedding must never outlive or precede its text.
func (p *Pool) InsertEmbedding(ctx context.Context, fp fingerprint.Fingerprint, vector []float64) (Persisted[Embedding], bool, error) {
	if len(vector) == 0 {
		return Persisted[Embedding]{}, false, fmt.Errorf("embedding vector is empty")
	}
	encoded, err := json.Marshal(vector)
	if err != nil {
		return Persisted[Embedding]{}, false, fmt.Errorf("encode embedding vector: %w", err)
	}

	const q = `
WITH inserted AS (
	INSERT INTO digest.embeddings (fingerprint, vector, size)
	SELECT $1, $2::jsonb, $3
	WHERE EXISTS (SELECT 1 FROM digest.text_values tv WHERE tv.fingerprint = $1)
	ON CONFLICT (fingerprint) DO NOTHING
	RETURNING embedding_id, fingerprint, vector, size, TRUE AS was_new
)
SELECT embedding_id, fingerprint, vector, size, was_new FROM inserted
UNION ALL
SELECT emb.embedding_id, emb.fingerprint, emb.vector, emb.size, FALSE
FROM digest.embeddings emb
WHERE emb.fingerprint = $1
ORDER BY was_new DESC
LIMIT 1
`

	var embedding Embedding
	var wasNew bool
	err = p.QueryRow(ctx, q, fp.Bytes(), string(encoded), len(vector)).
		Scan(&embedding.EmbeddingID, &embedding.Fingerprint, &embedding.Vector, &embedding.Size, &wasNew)
	if err != nil {
		if IsNoRows(err) {
			return Persisted[Embedding]{}, false, fmt.Errorf("insert embedding fingerprint=%s: no text value with this fingerprint", fp)
		}
		return Persisted[Embedding]{}, false, fmt.Errorf("insert embedding fingerprint=%s: %w", fp, err)
	}

	return Persisted[Embedding]{ID: ID[Embedding](embedding.EmbeddingID), Value: embedding}, wasNew, nil
}

// FindEmbeddingByFingerprint resolves a fingerprint to its stored vector.
func (p *Pool) FindEmbeddingByFingerprint(ctx context.Context, fp fingerprint.Fingerprint) (Persisted[Embedding], error) {
	const q = `
SELECT embedding_id, fingerprint, vector, size
FROM digest.embeddings
WHERE fingerprint = $1
`

	var embedding Embedding
	err := p.QueryRow(ctx, q, fp.Bytes()).
		Scan(&embedding.EmbeddingID, &embedding.Fingerprint, &embedding.Vector, &embedding.Size)
	if err != nil {
		return Persisted[Embedding]{}, fmt.Errorf("find embedding fingerprint=%s: %w", fp, err)
	}

	return Persisted[Embedding]{ID: ID[Embedding](embedding.EmbeddingID), Value: embedding}, nil
}

// FindEmbeddingByID looks an embedding up by its id.
func (p *Pool) FindEmbeddingByID(ctx context.Context, id ID[Embedding]) (Persisted[Embedding], error) {
	const q = `
SELECT embedding_id, fingerprint, vector, size
FROM digest.embeddings
WHERE embedding_id = $1
`

	var embedding Embedding
	err := p.QueryRow(ctx, q, id.Int64()).
		Scan(&embedding.EmbeddingID, &embedding.Fingerprint, &embedding.Vector, &embedding.Size)
	if err != nil {
		return Persisted[Embedding]{}, fmt.Errorf("find embedding embedding_id=%d: %w", id.Int64(), err)
	}

	return Persisted[Embedding]{ID: ID[Embedding](embedding.EmbeddingID), Value: embedding}, nil
}

// ListTextValuesMissingEmbedding returns text values of one (kind, lang)
// referenced by at least one field whose entry was published inside
// [dayStart, dayEnd) and that have no embedding row yet.
func (p *Pool) ListTextValuesMissingEmbedding(ctx context.Context, kind, lang string, dayStart, dayEnd time.Time) ([]Persisted[TextValue], error) {
	const q = `
SELECT DISTINCT tv.text_value_id, tv.fingerprint, tv.text
FROM digest.text_values tv
JOIN digest.fields f ON f.fingerprint = tv.fingerprint
JOIN digest.entries e ON e.entry_id = f.entry_id
WHERE f.kind = $1
  AND f.lang = $2
  AND e.published_at >= $3 AND e.published_at < $4
  AND NOT EXISTS (
	SELECT 1 FROM digest.embeddings emb WHERE emb.fingerprint = tv.fingerprint
  )
ORDER BY tv.text_value_id
`

	rows, err := p.Query(ctx, q, kind, lang, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("list text values missing embedding kind=%s lang=%s: %w", kind, lang, err)
	}
	defer rows.Close()

	values := make([]Persisted[TextValue], 0, 16)
	for rows.Next() {
		var value TextValue
		if err := rows.Scan(&value.TextValueID, &value.Fingerprint, &value.Text); err != nil {
			return nil, fmt.Errorf("scan text value row: %w", err)
		}
		values = append(values, Persisted[TextValue]{ID: ID[TextValue](value.TextValueID), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate text value rows: %w", err)
	}
	return values, nil
}

// ListEmbeddingsForDay returns the embeddings referenced through fields of one
// (kind, lang) by entries published inside [dayStart, dayEnd). This is the
// clustering engine's input set.
func (p *Pool) ListEmbeddingsForDay(ctx context.Context, kind, lang string, dayStart, dayEnd time.Time) ([]Persisted[Embedding], error) {
	const q = `
SELECT DISTINCT emb.embedding_id, emb.fingerprint, emb.vector, emb.size
FROM digest.embeddings emb
JOIN digest.fields f ON f.fingerprint = emb.fingerprint
JOIN digest.entries e ON e.entry_id = f.entry_id
WHERE f.kind = $1
  AND f.lang = $2
  AND e.published_at >= $3 AND e.published_at < $4
ORDER BY emb.embedding_id
`

	rows, err := p.Query(ctx, q, kind, lang, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("list embeddings kind=%s lang=%s: %w", kind, lang, err)
	}
	defer rows.Close()

	embeddings := make([]Persisted[Embedding], 0, 16)
	for rows.Next() {
		var embedding Embedding
		if err := rows.Scan(&embedding.EmbeddingID, &embedding.Fingerprint, &embedding.Vector, &embedding.Size); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		embeddings = append(embeddings, Persisted[Embedding]{ID: ID[Embedding](embedding.EmbeddingID), Value: embedding})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding rows: %w", err)
	}
	return embeddings, nil
}
