package domain

import (
	"errors"
	"testing"
	"time"
)

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{"valid", "flood in region A", false},
		{"empty", "", true},
		{"whitespace only", "   \t\n", true},
		{"single word", "earthquake", false},
		{"too long", string(make([]byte, MaxQueryLen+1)), true},
		{"invalid utf8", "flood\xff\xfe", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuery(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateQuery(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("error should wrap ErrInvalidQuery, got %v", err)
			}
		})
	}
}

func TestValidateRecord(t *testing.T) {
	valid := Record{
		ExternalID: "51234",
		Title:      "Flood in Region A",
		OccurredAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := ValidateRecord(valid); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}

	missing := []struct {
		name   string
		mutate func(*Record)
	}{
		{"external id", func(r *Record) { r.ExternalID = "" }},
		{"title", func(r *Record) { r.Title = "" }},
		{"date", func(r *Record) { r.OccurredAt = time.Time{} }},
	}
	for _, tt := range missing {
		t.Run("missing "+tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := ValidateRecord(r); err == nil {
				t.Fatalf("expected error for missing %s", tt.name)
			}
		})
	}
}

func TestRecordEmbeddingText(t *testing.T) {
	r := Record{Title: "Cyclone Freddy", Description: "Severe tropical storm."}
	if got := r.EmbeddingText(); got != "Cyclone Freddy Severe tropical storm." {
		t.Errorf("EmbeddingText() = %q", got)
	}
	r.Description = ""
	if got := r.EmbeddingText(); got != "Cyclone Freddy" {
		t.Errorf("EmbeddingText() without description = %q", got)
	}
}

func TestRecordHasEmbedding(t *testing.T) {
	r := Record{}
	if r.HasEmbedding() {
		t.Error("empty record should not report an embedding")
	}
	r.Embedding = []float32{0.1, 0.2}
	if !r.HasEmbedding() {
		t.Error("record with vector should report an embedding")
	}
}
