package pipeline

import (
	"context"
	"fmt"
	"time"

	"horse.fit/digest/internal/db"
	"horse.fit/digest/internal/feeds"
)

// ReportSummary describes one persisted clustering run.
type ReportSummary struct {
	ReportID  db.ID[db.Report]
	Groups    int
	Threshold float64
	Score     float64
	Rows      int
	Dims      int
}

// BuildReport clusters the day's embeddings and persists the resulting report
// and its groups. Report and group creation is the cycle's last step, so a
// failure anywhere earlier never exposes a partial report. With fewer inputs
// than the minimum cluster size an empty report is still persisted, keeping
// one report per completed cycle.
func (s *Service) BuildReport(ctx context.Context, dayStart, dayEnd time.Time) (ReportSummary, error) {
	embeddings, err := s.store.ListEmbeddingsForDay(ctx, string(s.settings.EmbedKind), s.settings.TargetLanguage, dayStart, dayEnd)
	if err != nil {
		return ReportSummary{}, err
	}

	vectors := make([][]float64, len(embeddings))
	for i, embedding := range embeddings {
		vector, err := embedding.Value.Floats()
		if err != nil {
			return ReportSummary{}, fmt.Errorf("%w: %v", ErrConsistency, err)
		}
		if i > 0 && len(vector) != len(vectors[0]) {
			return ReportSummary{}, fmt.Errorf(
				"%w: embedding_id=%d has %d dimensions, run expects %d",
				ErrConsistency, embedding.ID.Int64(), len(vector), len(vectors[0]),
			)
		}
		vectors[i] = vector
	}

	result, err := s.clusterer.Run(ctx, vectors, s.settings.Cluster)
	if err != nil {
		return ReportSummary{}, err
	}

	// Make sure every clustered entry can render a display-language title
	// before the report becomes visible.
	for _, group := range result.Groups {
		memberIDs := make([]db.ID[db.Embedding], len(group.Members))
		for i, member := range group.Members {
			memberIDs[i] = embeddings[member].ID
		}
		if err := s.EnsureTranslated(ctx, memberIDs, feeds.KindTitle, s.settings.DisplayLanguage); err != nil {
			return ReportSummary{}, err
		}
	}

	report, err := s.store.InsertReport(ctx, result.Threshold, result.MinPoints, result.Score, result.Rows, result.Dims)
	if err != nil {
		return ReportSummary{}, err
	}

	for _, group := range result.Groups {
		memberIDs := make([]db.ID[db.Embedding], len(group.Members))
		for i, member := range group.Members {
			memberIDs[i] = embeddings[member].ID
		}
		if _, err := s.store.InsertReportGroup(ctx, report.ID, memberIDs, embeddings[group.Representative].ID); err != nil {
			return ReportSummary{}, err
		}
	}

	s.logger.Info().
		Int64("report_id", report.ID.Int64()).
		Int("groups", len(result.Groups)).
		Float64("threshold", result.Threshold).
		Float64("score", result.Score).
		Int("rows", result.Rows).
		Msg("report assembled")

	return ReportSummary{
		ReportID:  report.ID,
		Groups:    len(result.Groups),
		Threshold: result.Threshold,
		Score:     result.Score,
		Rows:      result.Rows,
		Dims:      result.Dims,
	}, nil
}
