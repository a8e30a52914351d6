package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"horse.fit/digest/internal/fingerprint"
)

// EmbedResult counts one embedding pass.
type EmbedResult struct {
	Candidates int
	Embedded   int
	Failed     int
}

// EmbedDay embeds the day's target-language text values of the configured
// kind that have no vector yet. The embedding is stored under the text
// value's fingerprint, so a string shared by many entries is embedded once.
// A collaborator failure costs only that item.
func (s *Service) EmbedDay(ctx context.Context, dayStart, dayEnd time.Time) (EmbedResult, error) {
	var result EmbedResult

	values, err := s.store.ListTextValuesMissingEmbedding(ctx, string(s.settings.EmbedKind), s.settings.TargetLanguage, dayStart, dayEnd)
	if err != nil {
		return result, err
	}
	result.Candidates = len(values)

	for _, value := range values {
		fp, err := fingerprint.FromBytes(value.Value.Fingerprint)
		if err != nil {
			return result, fmt.Errorf("%w: text_value_id=%d carries malformed fingerprint: %v", ErrConsistency, value.ID.Int64(), err)
		}

		vector, err := s.embedder.Embed(ctx, normalizeForEmbedding(value.Value.Text))
		if err != nil {
			s.logger.Error().
				Err(err).
				Int64("text_value_id", value.ID.Int64()).
				Msg("embedding failed; skipping item")
			result.Failed++
			continue
		}

		if _, _, err := s.store.InsertEmbedding(ctx, fp, vector); err != nil {
			return result, err
		}
		result.Embedded++
	}

	return result, nil
}

// normalizeForEmbedding is a pure text transform applied before calling the
// embedder: lowercase, punctuation stripped to spaces, whitespace collapsed.
// The stored text value stays untouched.
func normalizeForEmbedding(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
