package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"horse.fit/digest/internal/db"
	"horse.fit/digest/internal/fingerprint"
)

// memStore is an in-memory Store with the same idempotent-insert semantics as
// the real pool.
type memStore struct {
	mu sync.Mutex

	nextID int64

	feedsByURL  map[string]db.Persisted[db.Feed]
	entries     map[string]db.Persisted[db.Entry]
	fields      map[string]db.Persisted[db.Field]
	textValues  map[fingerprint.Fingerprint]db.Persisted[db.TextValue]
	embeddings  map[fingerprint.Fingerprint]db.Persisted[db.Embedding]
	reports     []db.Persisted[db.Report]
	groups      []db.Persisted[db.ReportGroup]
	groupMember map[int64][]db.ID[db.Embedding]
}

func newMemStore() *memStore {
	return &memStore{
		feedsByURL:  make(map[string]db.Persisted[db.Feed]),
		entries:     make(map[string]db.Persisted[db.Entry]),
		fields:      make(map[string]db.Persisted[db.Field]),
		textValues:  make(map[fingerprint.Fingerprint]db.Persisted[db.TextValue]),
		embeddings:  make(map[fingerprint.Fingerprint]db.Persisted[db.Embedding]),
		groupMember: make(map[int64][]db.ID[db.Embedding]),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func entryKey(feedID int64, link string) string {
	return fmt.Sprintf("%d|%s", feedID, link)
}

func fieldKey(entryID int64, kind, lang string) string {
	return fmt.Sprintf("%d|%s|%s", entryID, kind, lang)
}

func (m *memStore) UpsertFeed(_ context.Context, title, url, language string) (db.Persisted[db.Feed], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.feedsByURL[url]; ok {
		existing.Value.Title = title
		existing.Value.Language = language
		m.feedsByURL[url] = existing
		return existing, nil
	}

	id := m.id()
	feed := db.Persisted[db.Feed]{
		ID:    db.ID[db.Feed](id),
		Value: db.Feed{FeedID: id, Title: title, URL: url, Language: language},
	}
	m.feedsByURL[url] = feed
	return feed, nil
}

func (m *memStore) InsertEntry(_ context.Context, feedID db.ID[db.Feed], link string, publishedAt time.Time) (db.Persisted[db.Entry], bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryKey(feedID.Int64(), link)
	if existing, ok := m.entries[key]; ok {
		return existing, false, nil
	}

	id := m.id()
	entry := db.Persisted[db.Entry]{
		ID:    db.ID[db.Entry](id),
		Value: db.Entry{EntryID: id, FeedID: feedID.Int64(), Link: link, PublishedAt: publishedAt.UTC()},
	}
	m.entries[key] = entry
	return entry, true, nil
}

func (m *memStore) InsertField(_ context.Context, entryID db.ID[db.Entry], kind, lang string, fp fingerprint.Fingerprint) (db.Persisted[db.Field], bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fieldKey(entryID.Int64(), kind, lang)
	if existing, ok := m.fields[key]; ok {
		return existing, false, nil
	}

	id := m.id()
	field := db.Persisted[db.Field]{
		ID:    db.ID[db.Field](id),
		Value: db.Field{FieldID: id, EntryID: entryID.Int64(), Kind: kind, Lang: lang, Fingerprint: fp.Bytes()},
	}
	m.fields[key] = field
	return field, true, nil
}

func (m *memStore) InsertTextValue(_ context.Context, fp fingerprint.Fingerprint, text string) (db.Persisted[db.TextValue], bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.textValues[fp]; ok {
		return existing, false, nil
	}

	id := m.id()
	value := db.Persisted[db.TextValue]{
		ID:    db.ID[db.TextValue](id),
		Value: db.TextValue{TextValueID: id, Fingerprint: fp.Bytes(), Text: text},
	}
	m.textValues[fp] = value
	return value, true, nil
}

func (m *memStore) InsertEmbedding(_ context.Context, fp fingerprint.Fingerprint, vector []float64) (db.Persisted[db.Embedding], bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.textValues[fp]; !ok {
		return db.Persisted[db.Embedding]{}, false, fmt.Errorf("no text value with fingerprint %s", fp)
	}
	if existing, ok := m.embeddings[fp]; ok {
		return existing, false, nil
	}

	encoded := make([]string, len(vector))
	for i, v := range vector {
		encoded[i] = fmt.Sprintf("%g", v)
	}

	id := m.id()
	embedding := db.Persisted[db.Embedding]{
		ID: db.ID[db.Embedding](id),
		Value: db.Embedding{
			EmbeddingID: id,
			Fingerprint: fp.Bytes(),
			Vector:      "[" + strings.Join(encoded, ",") + "]",
			Size:        len(vector),
		},
	}
	m.embeddings[fp] = embedding
	return embedding, true, nil
}

func (m *memStore) FindFieldByEntryKindLang(_ context.Context, entryID db.ID[db.Entry], kind, lang string) (*db.Persisted[db.Field], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if field, ok := m.fields[fieldKey(entryID.Int64(), kind, lang)]; ok {
		return &field, nil
	}
	return nil, nil
}

func (m *memStore) FindTextValueByFingerprint(_ context.Context, fp fingerprint.Fingerprint) (db.Persisted[db.TextValue], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value, ok := m.textValues[fp]; ok {
		return value, nil
	}
	return db.Persisted[db.TextValue]{}, fmt.Errorf("find text value fingerprint=%s: %w", fp, db.ErrNoRows)
}

func (m *memStore) FindEmbeddingByID(_ context.Context, id db.ID[db.Embedding]) (db.Persisted[db.Embedding], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, embedding := range m.embeddings {
		if embedding.ID == id {
			return embedding, nil
		}
	}
	return db.Persisted[db.Embedding]{}, fmt.Errorf("find embedding embedding_id=%d: %w", id.Int64(), db.ErrNoRows)
}

func (m *memStore) ListFieldsByFingerprint(_ context.Context, fp fingerprint.Fingerprint) ([]db.Persisted[db.Field], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := make([]db.Persisted[db.Field], 0, 2)
	for _, field := range m.fields {
		if fingerprintEqual(field.Value.Fingerprint, fp) {
			matches = append(matches, field)
		}
	}
	sortByID(matches, func(f db.Persisted[db.Field]) int64 { return f.ID.Int64() })
	return matches, nil
}

func (m *memStore) ListFieldsByEntryKind(_ context.Context, entryID db.ID[db.Entry], kind string) ([]db.Persisted[db.Field], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := make([]db.Persisted[db.Field], 0, 2)
	for _, field := range m.fields {
		if field.Value.EntryID == entryID.Int64() && field.Value.Kind == kind {
			matches = append(matches, field)
		}
	}
	sortByID(matches, func(f db.Persisted[db.Field]) int64 { return f.ID.Int64() })
	return matches, nil
}

func (m *memStore) ListUntranslatedFields(_ context.Context, kind, targetLang string, dayStart, dayEnd time.Time) ([]db.Persisted[db.Field], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matches := make([]db.Persisted[db.Field], 0, 4)
	for _, field := range m.fields {
		if field.Value.Kind != kind || field.Value.Lang == targetLang {
			continue
		}
		entry, ok := m.entryByIDLocked(field.Value.EntryID)
		if !ok || !withinDay(entry.Value.PublishedAt, dayStart, dayEnd) {
			continue
		}
		if _, exists := m.fields[fieldKey(field.Value.EntryID, kind, targetLang)]; exists {
			continue
		}
		matches = append(matches, field)
	}
	sortByID(matches, func(f db.Persisted[db.Field]) int64 { return f.ID.Int64() })
	return matches, nil
}

func (m *memStore) ListTextValuesMissingEmbedding(_ context.Context, kind, lang string, dayStart, dayEnd time.Time) ([]db.Persisted[db.TextValue], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int64]bool)
	matches := make([]db.Persisted[db.TextValue], 0, 4)
	for _, field := range m.fields {
		if field.Value.Kind != kind || field.Value.Lang != lang {
			continue
		}
		entry, ok := m.entryByIDLocked(field.Value.EntryID)
		if !ok || !withinDay(entry.Value.PublishedAt, dayStart, dayEnd) {
			continue
		}
		fp, err := fingerprint.FromBytes(field.Value.Fingerprint)
		if err != nil {
			return nil, err
		}
		if _, embedded := m.embeddings[fp]; embedded {
			continue
		}
		value, ok := m.textValues[fp]
		if !ok || seen[value.ID.Int64()] {
			continue
		}
		seen[value.ID.Int64()] = true
		matches = append(matches, value)
	}
	sortByID(matches, func(v db.Persisted[db.TextValue]) int64 { return v.ID.Int64() })
	return matches, nil
}

func (m *memStore) ListEmbeddingsForDay(_ context.Context, kind, lang string, dayStart, dayEnd time.Time) ([]db.Persisted[db.Embedding], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[int64]bool)
	matches := make([]db.Persisted[db.Embedding], 0, 4)
	for _, field := range m.fields {
		if field.Value.Kind != kind || field.Value.Lang != lang {
			continue
		}
		entry, ok := m.entryByIDLocked(field.Value.EntryID)
		if !ok || !withinDay(entry.Value.PublishedAt, dayStart, dayEnd) {
			continue
		}
		fp, err := fingerprint.FromBytes(field.Value.Fingerprint)
		if err != nil {
			return nil, err
		}
		embedding, ok := m.embeddings[fp]
		if !ok || seen[embedding.ID.Int64()] {
			continue
		}
		seen[embedding.ID.Int64()] = true
		matches = append(matches, embedding)
	}
	sortByID(matches, func(e db.Persisted[db.Embedding]) int64 { return e.ID.Int64() })
	return matches, nil
}

func (m *memStore) InsertReport(_ context.Context, tolerance float64, minPoints int, score float64, rows, dims int) (db.Persisted[db.Report], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.id()
	report := db.Persisted[db.Report]{
		ID: db.ID[db.Report](id),
		Value: db.Report{
			ReportID:  id,
			Tolerance: tolerance,
			MinPoints: minPoints,
			Score:     score,
			Rows:      rows,
			Dims:      dims,
		},
	}
	m.reports = append(m.reports, report)
	return report, nil
}

func (m *memStore) InsertReportGroup(_ context.Context, reportID db.ID[db.Report], memberIDs []db.ID[db.Embedding], representative db.ID[db.Embedding]) (db.Persisted[db.ReportGroup], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	isMember := false
	for _, id := range memberIDs {
		if id == representative {
			isMember = true
		}
	}
	if !isMember {
		return db.Persisted[db.ReportGroup]{}, fmt.Errorf("representative embedding_id=%d is not a group member", representative.Int64())
	}

	id := m.id()
	group := db.Persisted[db.ReportGroup]{
		ID: db.ID[db.ReportGroup](id),
		Value: db.ReportGroup{
			ReportGroupID:             id,
			ReportID:                  reportID.Int64(),
			RepresentativeEmbeddingID: representative.Int64(),
		},
	}
	m.groups = append(m.groups, group)
	m.groupMember[id] = append([]db.ID[db.Embedding](nil), memberIDs...)
	return group, nil
}

func (m *memStore) entryByIDLocked(entryID int64) (db.Persisted[db.Entry], bool) {
	for _, entry := range m.entries {
		if entry.Value.EntryID == entryID {
			return entry, true
		}
	}
	return db.Persisted[db.Entry]{}, false
}

func (m *memStore) countFieldsByLang(kind, lang string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, field := range m.fields {
		if field.Value.Kind == kind && field.Value.Lang == lang {
			count++
		}
	}
	return count
}

func withinDay(t, dayStart, dayEnd time.Time) bool {
	return !t.Before(dayStart) && t.Before(dayEnd)
}

func fingerprintEqual(raw []byte, fp fingerprint.Fingerprint) bool {
	parsed, err := fingerprint.FromBytes(raw)
	if err != nil {
		return false
	}
	return parsed == fp
}

func sortByID[T any](items []T, id func(T) int64) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && id(items[j]) < id(items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
