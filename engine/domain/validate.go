package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQueryLen bounds free-text search queries in bytes.
const MaxQueryLen = 1024

// ValidateQuery checks free-text search input. Empty or whitespace-only
// queries are rejected before any embedding or store call.
func ValidateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	if !utf8.ValidString(q) {
		return fmt.Errorf("%w: query is not valid UTF-8", ErrInvalidQuery)
	}
	if len(q) > MaxQueryLen {
		return fmt.Errorf("%w: query exceeds %d bytes", ErrInvalidQuery, MaxQueryLen)
	}
	return nil
}

// ValidateRecord checks the invariants a record must satisfy before it is
// handed to the stores.
func ValidateRecord(r Record) error {
	if r.ExternalID == "" {
		return fmt.Errorf("record: missing external id")
	}
	if r.Title == "" {
		return fmt.Errorf("record %s: missing title", r.ExternalID)
	}
	if r.OccurredAt.IsZero() {
		return fmt.Errorf("record %s: missing date", r.ExternalID)
	}
	return nil
}
