package db

import (
	"context"
	"fmt"

	"horse.fit/digest/internal/fingerprint"
)

// InsertTextValue stores a content-addressed text blob, idempotent on its
// fingerprint. Two writers producing the identical text converge on one row
// and both observe the same id.
func (p *Pool) InsertTextValue(ctx context.Context, fp fingerprint.Fingerprint, text string) (Persisted[TextValue], bool, error) {
	const q = `
WITH inserted AS (
	INSERT INTO digest.text_values (fingerprint, text)
	VALUES ($1, $2)
	ON CONFLICT (fingerprint) DO NOTHING
	RETURNING text_value_id, fingerprint, text, TRUE AS was_new
)
SELECT text_value_id, fingerprint, text, was_new FROM inserted
UNION ALL
SELECT tv.text_value_id, tv.fingerprint, tv.text, FALSE
FROM digest.text_values tv
WHERE tv.fingerprint = $1
ORDER BY was_new DESC
LIMIT 1
`

	var value TextValue
	var wasNew bool
	err := p.QueryRow(ctx, q, fp.Bytes(), text).
		Scan(&value.TextValueID, &value.Fingerprint, &value.Text, &wasNew)
	if err != nil {
		return Persisted[TextValue]{}, false, fmt.Errorf("insert text value fingerprint=%s: %w", fp, err)
	}

	return Persisted[TextValue]{ID: ID[TextValue](value.TextValueID), Value: value}, wasNew, nil
}

// FindTextValueByFingerprint resolves a fingerprint to its stored text. The
// caller decides whether absence is tolerable; for a fingerprint referenced by
// an existing field it is not.
func (p *Pool) FindTextValueByFingerprint(ctx context.Context, fp fingerprint.Fingerprint) (Persisted[TextValue], error) {
	const q = `
SELECT text_value_id, fingerprint, text
FROM digest.text_values
WHERE fingerprint = $1
`

	var value TextValue
	err := p.QueryRow(ctx, q, fp.Bytes()).
		Scan(&value.TextValueID, &value.Fingerprint, &value.Text)
	if err != nil {
		if IsNoRows(err) {
			return Persisted[TextValue]{}, fmt.Errorf("find text value fingerprint=%s: %w", fp, ErrNoRows)
		}
		return Persisted[TextValue]{}, fmt.Errorf("find text value fingerprint=%s: %w", fp, err)
	}

	return Persisted[TextValue]{ID: ID[TextValue](value.TextValueID), Value: value}, nil
}
