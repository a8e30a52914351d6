package db

import (
	"time"
)

// Feed maps digest.feeds.
type Feed struct {
	FeedID    int64     `gorm:"column:feed_id;primaryKey;autoIncrement"`
	Title     string    `gorm:"column:title;type:text;not null"`
	URL       string    `gorm:"column:url;type:text;not null;unique"`
	Language  string    `gorm:"column:language;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Feed) TableName() string { return "digest.feeds" }

// Entry maps digest.entries. One published item from one feed, unique by
// (feed, link). Rows are never mutated or deleted.
type Entry struct {
	EntryID     int64     `gorm:"column:entry_id;primaryKey;autoIncrement"`
	FeedID      int64     `gorm:"column:feed_id;type:bigint;not null;uniqueIndex:ux_entries_feed_link"`
	Link        string    `gorm:"column:link;type:text;not null;uniqueIndex:ux_entries_feed_link"`
	PublishedAt time.Time `gorm:"column:published_at;type:timestamptz;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Entry) TableName() string { return "digest.entries" }

// Field maps digest.fields. One language/kind-tagged text attribute of an
// entry. It stores the fingerprint of its value, never the text itself; the
// text lives in digest.text_values keyed by the same fingerprint.
type Field struct {
	FieldID     int64     `gorm:"column:field_id;primaryKey;autoIncrement"`
	EntryID     int64     `gorm:"column:entry_id;type:bigint;not null;uniqueIndex:ux_fields_entry_kind_lang"`
	Kind        string    `gorm:"column:kind;type:text;not null;uniqueIndex:ux_fields_entry_kind_lang"`
	Lang        string    `gorm:"column:lang;type:text;not null;uniqueIndex:ux_fields_entry_kind_lang"`
	Fingerprint []byte    `gorm:"column:fingerprint;type:bytea;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Field) TableName() string { return "digest.fields" }

// TextValue maps digest.text_values. Content-addressed text, unique by
// fingerprint.
type TextValue struct {
	TextValueID int64     `gorm:"column:text_value_id;primaryKey;autoIncrement"`
	Fingerprint []byte    `gorm:"column:fingerprint;type:bytea;not null;unique"`
	Text        string    `gorm:"column:text;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (TextValue) TableName() string { return "digest.text_values" }

// Embedding maps digest.embeddings. Content-addressed vector, unique by
// fingerprint; exists only if a text value with the same fingerprint exists.
// The vector is stored as a JSON array of floats.
type Embedding struct {
	EmbeddingID int64     `gorm:"column:embedding_id;primaryKey;autoIncrement"`
	Fingerprint []byte    `gorm:"column:fingerprint;type:bytea;not null;unique"`
	Vector      string    `gorm:"column:vector;type:jsonb;not null"`
	Size        int       `gorm:"column:size;type:integer;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Embedding) TableName() string { return "digest.embeddings" }

// Report maps digest.reports. One clustering run; immutable.
type Report struct {
	ReportID  int64     `gorm:"column:report_id;primaryKey;autoIncrement"`
	Tolerance float64   `gorm:"column:tolerance;type:double precision;not null"`
	MinPoints int       `gorm:"column:min_points;type:integer;not null"`
	Score     float64   `gorm:"column:score;type:double precision;not null"`
	Rows      int       `gorm:"column:rows;type:integer;not null"`
	Dims      int       `gorm:"column:dims;type:integer;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Report) TableName() string { return "digest.reports" }

// ReportGroup maps digest.report_groups. One cluster within a report.
type ReportGroup struct {
	ReportGroupID             int64     `gorm:"column:report_group_id;primaryKey;autoIncrement"`
	ReportID                  int64     `gorm:"column:report_id;type:bigint;not null;index"`
	RepresentativeEmbeddingID int64     `gorm:"column:representative_embedding_id;type:bigint;not null"`
	CreatedAt                 time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ReportGroup) TableName() string { return "digest.report_groups" }

// ReportGroupMember maps digest.report_group_members. Membership rows owned
// exclusively by their group.
type ReportGroupMember struct {
	ReportGroupID int64 `gorm:"column:report_group_id;type:bigint;primaryKey"`
	EmbeddingID   int64 `gorm:"column:embedding_id;type:bigint;primaryKey"`
}

func (ReportGroupMember) TableName() string { return "digest.report_group_members" }

func autoMigrateModels() []any {
	return []any{
		&Feed{},
		&Entry{},
		&Field{},
		&TextValue{},
		&Embedding{},
		&Report{},
		&ReportGroup{},
		&ReportGroupMember{},
	}
}
