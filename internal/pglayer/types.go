package pglayer

import "time"

// Row is a single L3 record as returned by Query, before deserialization
// into the caller's value type.
type Row struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
}
