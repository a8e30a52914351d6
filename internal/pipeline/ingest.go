package pipeline

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"horse.fit/digest/internal/feeds"
	"horse.fit/digest/internal/fingerprint"
	"horse.fit/digest/internal/langdetect"
)

// IngestResult counts one ingestion pass across all configured feeds.
type IngestResult struct {
	Feeds       int
	FailedFeeds int
	Entries     int
	NewEntries  int
	Fields      int
}

// Ingest crawls every configured feed concurrently and writes entries and
// fields through the content store. Fetch and parse failures cost only that
// feed's contribution for the cycle; store errors abort the whole pass.
func (s *Service) Ingest(ctx context.Context, descriptors []feeds.Descriptor) (IngestResult, error) {
	var mu sync.Mutex
	var result IngestResult
	result.Feeds = len(descriptors)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, descriptor := range descriptors {
		descriptor := descriptor
		group.Go(func() error {
			feed, err := s.store.UpsertFeed(groupCtx, descriptor.Title, descriptor.URL, descriptor.Language)
			if err != nil {
				return err
			}

			entries, err := s.crawler.Crawl(groupCtx, descriptor)
			if err != nil {
				var fetchErr *feeds.FetchError
				var parseErr *feeds.ParseError
				if errors.As(err, &fetchErr) || errors.As(err, &parseErr) {
					s.logger.Warn().
						Err(err).
						Str("feed", descriptor.Title).
						Msg("feed crawl failed; contributing zero entries this cycle")
					mu.Lock()
					result.FailedFeeds++
					mu.Unlock()
					return nil
				}
				return err
			}

			for _, entry := range entries {
				persisted, wasNew, err := s.store.InsertEntry(groupCtx, feed.ID, entry.Link, entry.PublishedAt)
				if err != nil {
					return err
				}

				mu.Lock()
				result.Entries++
				if wasNew {
					result.NewEntries++
				}
				mu.Unlock()

				// An entry seen on an earlier crawl already has its fields;
				// skipping them is what keeps repeated crawls cheap.
				if !wasNew {
					continue
				}

				for _, field := range entry.Fields {
					lang := langdetect.Resolve(field.Text, field.Lang)
					if lang == "" {
						s.logger.Debug().
							Str("feed", descriptor.Title).
							Str("link", entry.Link).
							Str("kind", string(field.Kind)).
							Msg("dropping field with undetectable language")
						continue
					}

					fp := fingerprint.Compute(field.Text)
					if _, _, err := s.store.InsertField(groupCtx, persisted.ID, string(field.Kind), lang, fp); err != nil {
						return err
					}
					if _, _, err := s.store.InsertTextValue(groupCtx, fp, field.Text); err != nil {
						return err
					}

					mu.Lock()
					result.Fields++
					mu.Unlock()
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return result, err
	}
	return result, nil
}
