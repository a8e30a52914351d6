package pipeline

import (
	"context"
	"fmt"
	"time"

	"horse.fit/digest/internal/db"
	"horse.fit/digest/internal/feeds"
	"horse.fit/digest/internal/fingerprint"
)

// TranslateResult counts one translation pass.
type TranslateResult struct {
	Candidates int
	Translated int
	Reused     int
	Failed     int
}

// TranslateDay translates the day's untranslated fields of the configured
// embed kind into the target language. Because text values are content
// addressed, a string shared by several entries is translated once; the later
// fields reuse the stored result. A collaborator failure costs only that item.
func (s *Service) TranslateDay(ctx context.Context, dayStart, dayEnd time.Time) (TranslateResult, error) {
	kind := string(s.settings.EmbedKind)
	target := s.settings.TargetLanguage

	var result TranslateResult

	fields, err := s.store.ListUntranslatedFields(ctx, kind, target, dayStart, dayEnd)
	if err != nil {
		return result, err
	}
	result.Candidates = len(fields)

	translatedByFingerprint := make(map[fingerprint.Fingerprint]fingerprint.Fingerprint, len(fields))

	for _, field := range fields {
		if field.Value.Lang == target {
			continue
		}

		sourceFP, err := fingerprint.FromBytes(field.Value.Fingerprint)
		if err != nil {
			return result, fmt.Errorf("%w: field_id=%d carries malformed fingerprint: %v", ErrConsistency, field.ID.Int64(), err)
		}

		// In-cycle fan-in: a fingerprint already translated this pass only
		// needs the new field row.
		if targetFP, ok := translatedByFingerprint[sourceFP]; ok {
			if _, _, err := s.store.InsertField(ctx, db.ID[db.Entry](field.Value.EntryID), kind, target, targetFP); err != nil {
				return result, err
			}
			result.Reused++
			continue
		}

		source, err := s.store.FindTextValueByFingerprint(ctx, sourceFP)
		if err != nil {
			if db.IsNoRows(err) {
				return result, fmt.Errorf("%w: field_id=%d references missing text value %s", ErrConsistency, field.ID.Int64(), sourceFP)
			}
			return result, err
		}

		translated, err := s.translator.Translate(ctx, source.Value.Text, field.Value.Lang, target)
		if err != nil {
			s.logger.Error().
				Err(err).
				Int64("field_id", field.ID.Int64()).
				Str("lang", field.Value.Lang).
				Msg("translation failed; skipping item")
			result.Failed++
			continue
		}

		targetFP := fingerprint.Compute(translated)
		if _, _, err := s.store.InsertTextValue(ctx, targetFP, translated); err != nil {
			return result, err
		}
		if _, _, err := s.store.InsertField(ctx, db.ID[db.Entry](field.Value.EntryID), kind, target, targetFP); err != nil {
			return result, err
		}

		translatedByFingerprint[sourceFP] = targetFP
		result.Translated++
	}

	return result, nil
}

// EnsureTranslated makes sure every entry behind the given embeddings has a
// display-language field of the given kind, translating lazily where one is
// missing. Used for cluster members' titles; a no-op for entries already
// covered.
func (s *Service) EnsureTranslated(ctx context.Context, embeddingIDs []db.ID[db.Embedding], kind feeds.FieldKind, displayLang string) error {
	for _, embeddingID := range embeddingIDs {
		embedding, err := s.store.FindEmbeddingByID(ctx, embeddingID)
		if err != nil {
			if db.IsNoRows(err) {
				return fmt.Errorf("%w: embedding_id=%d not found", ErrConsistency, embeddingID.Int64())
			}
			return err
		}

		fp, err := fingerprint.FromBytes(embedding.Value.Fingerprint)
		if err != nil {
			return fmt.Errorf("%w: embedding_id=%d carries malformed fingerprint: %v", ErrConsistency, embeddingID.Int64(), err)
		}

		references, err := s.store.ListFieldsByFingerprint(ctx, fp)
		if err != nil {
			return err
		}

		for _, reference := range references {
			entryID := db.ID[db.Entry](reference.Value.EntryID)

			// The reference fields share the embedding's target-language text,
			// so the entry's own title still sits in whatever language the feed
			// delivered. Scan all language variants: one in the display
			// language means the entry is covered, otherwise the first variant
			// becomes the translation source.
			candidates, err := s.store.ListFieldsByEntryKind(ctx, entryID, string(kind))
			if err != nil {
				return err
			}

			var source *db.Persisted[db.Field]
			covered := false
			for i := range candidates {
				if candidates[i].Value.Lang == displayLang {
					covered = true
					break
				}
				if source == nil {
					source = &candidates[i]
				}
			}
			if covered {
				continue
			}
			if source == nil {
				// The entry never had this field kind; nothing to translate.
				continue
			}

			sourceFP, err := fingerprint.FromBytes(source.Value.Fingerprint)
			if err != nil {
				return fmt.Errorf("%w: field_id=%d carries malformed fingerprint: %v", ErrConsistency, source.ID.Int64(), err)
			}
			text, err := s.store.FindTextValueByFingerprint(ctx, sourceFP)
			if err != nil {
				if db.IsNoRows(err) {
					return fmt.Errorf("%w: field_id=%d references missing text value %s", ErrConsistency, source.ID.Int64(), sourceFP)
				}
				return err
			}

			translated, err := s.translator.Translate(ctx, text.Value.Text, source.Value.Lang, displayLang)
			if err != nil {
				s.logger.Error().
					Err(err).
					Int64("entry_id", entryID.Int64()).
					Str("kind", string(kind)).
					Msg("lazy translation failed; entry renders without a display title")
				continue
			}

			targetFP := fingerprint.Compute(translated)
			if _, _, err := s.store.InsertTextValue(ctx, targetFP, translated); err != nil {
				return err
			}
			if _, _, err := s.store.InsertField(ctx, entryID, string(kind), displayLang, targetFP); err != nil {
				return err
			}
		}
	}

	return nil
}
