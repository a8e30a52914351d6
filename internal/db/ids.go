package db

import "strconv"

// ID is a typed row identifier. The phantom type parameter keeps ids of
// different entities from being mixed up at compile time: an ID[Entry] cannot
// be passed where an ID[Embedding] is expected.
type ID[T any] int64

func (id ID[T]) Int64() int64 {
	return int64(id)
}

func (id ID[T]) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Persisted pairs a stored row with its assigned identifier.
type Persisted[T any] struct {
	ID    ID[T]
	Value T
}
