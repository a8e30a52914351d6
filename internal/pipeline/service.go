package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/digest/internal/cluster"
	"horse.fit/digest/internal/db"
	"horse.fit/digest/internal/feeds"
	"horse.fit/digest/internal/fingerprint"
)

// ErrConsistency marks a broken content-store invariant, e.g. a field whose
// fingerprint resolves to no text value. Never retried; the cycle aborts.
var ErrConsistency = errors.New("content store consistency violation")

// Store is the persistence surface the pipeline writes through. *db.Pool
// implements it; tests substitute an in-memory stub.
type Store interface {
	UpsertFeed(ctx context.Context, title, url, language string) (db.Persisted[db.Feed], error)
	InsertEntry(ctx context.Context, feedID db.ID[db.Feed], link string, publishedAt time.Time) (db.Persisted[db.Entry], bool, error)
	InsertField(ctx context.Context, entryID db.ID[db.Entry], kind, lang string, fp fingerprint.Fingerprint) (db.Persisted[db.Field], bool, error)
	InsertTextValue(ctx context.Context, fp fingerprint.Fingerprint, text string) (db.Persisted[db.TextValue], bool, error)
	InsertEmbedding(ctx context.Context, fp fingerprint.Fingerprint, vector []float64) (db.Persisted[db.Embedding], bool, error)

	FindTextValueByFingerprint(ctx context.Context, fp fingerprint.Fingerprint) (db.Persisted[db.TextValue], error)
	FindEmbeddingByID(ctx context.Context, id db.ID[db.Embedding]) (db.Persisted[db.Embedding], error)
	ListFieldsByFingerprint(ctx context.Context, fp fingerprint.Fingerprint) ([]db.Persisted[db.Field], error)
	ListFieldsByEntryKind(ctx context.Context, entryID db.ID[db.Entry], kind string) ([]db.Persisted[db.Field], error)
	ListUntranslatedFields(ctx context.Context, kind, targetLang string, dayStart, dayEnd time.Time) ([]db.Persisted[db.Field], error)
	ListTextValuesMissingEmbedding(ctx context.Context, kind, lang string, dayStart, dayEnd time.Time) ([]db.Persisted[db.TextValue], error)
	ListEmbeddingsForDay(ctx context.Context, kind, lang string, dayStart, dayEnd time.Time) ([]db.Persisted[db.Embedding], error)

	InsertReport(ctx context.Context, tolerance float64, minPoints int, score float64, rows, dims int) (db.Persisted[db.Report], error)
	InsertReportGroup(ctx context.Context, reportID db.ID[db.Report], memberIDs []db.ID[db.Embedding], representative db.ID[db.Embedding]) (db.Persisted[db.ReportGroup], error)
}

// Translator converts text between languages.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Embedder maps text into vector space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Clusterer partitions embedding vectors into story groups.
type Clusterer interface {
	Run(ctx context.Context, vectors [][]float64, opts cluster.Options) (cluster.Result, error)
}

// Settings are the per-deployment pipeline parameters.
type Settings struct {
	EmbedKind       feeds.FieldKind
	TargetLanguage  string
	DisplayLanguage string
	Cluster         cluster.Options
}

// Service drives one digest cycle: crawl feeds, translate, embed, cluster,
// and assemble the day's report.
type Service struct {
	store      Store
	crawler    feeds.Crawler
	translator Translator
	embedder   Embedder
	clusterer  Clusterer
	settings   Settings
	logger     zerolog.Logger
}

func NewService(
	store Store,
	crawler feeds.Crawler,
	translator Translator,
	embedder Embedder,
	clusterer Clusterer,
	settings Settings,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store:      store,
		crawler:    crawler,
		translator: translator,
		embedder:   embedder,
		clusterer:  clusterer,
		settings:   settings,
		logger:     logger,
	}
}

// CycleSummary aggregates one cycle's stage results.
type CycleSummary struct {
	Ingest    IngestResult
	Translate TranslateResult
	Embed     EmbedResult
	Report    ReportSummary
}

// RunCycle executes ingestion, translation, embedding, clustering, and report
// assembly in order, scoped to the current UTC day. Stage failures abort the
// cycle; every write so far is idempotent, so the next cycle resumes safely.
func (s *Service) RunCycle(ctx context.Context, descriptors []feeds.Descriptor, now time.Time) (CycleSummary, error) {
	dayStart, dayEnd := dayBounds(now)

	var summary CycleSummary
	var err error

	summary.Ingest, err = s.Ingest(ctx, descriptors)
	if err != nil {
		return summary, err
	}

	summary.Translate, err = s.TranslateDay(ctx, dayStart, dayEnd)
	if err != nil {
		return summary, err
	}

	summary.Embed, err = s.EmbedDay(ctx, dayStart, dayEnd)
	if err != nil {
		return summary, err
	}

	summary.Report, err = s.BuildReport(ctx, dayStart, dayEnd)
	if err != nil {
		return summary, err
	}

	return summary, nil
}

func dayBounds(now time.Time) (time.Time, time.Time) {
	utc := now.UTC()
	start := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
