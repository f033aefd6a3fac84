package ingest

import (
	"testing"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/feed"
)

func sampleDisaster() feed.Disaster {
	return feed.Disaster{
		ID: "51234",
		Fields: feed.Fields{
			Name:        "Flood in Region A",
			Date:        feed.DateBlock{Created: "2024-03-01T00:00:00+00:00"},
			Type:        []string{"Flood", "Flash Flood"},
			Country:     []feed.Country{{Name: "Kenya"}, {Name: "Somalia"}},
			Status:      "ongoing",
			Description: "Heavy rains caused flooding.",
			URL:         "https://reliefweb.int/disaster/fl-2024-000001",
		},
	}
}

func TestNormalize(t *testing.T) {
	rec, err := Normalize(sampleDisaster())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.ExternalID != "51234" {
		t.Errorf("ExternalID = %q", rec.ExternalID)
	}
	if rec.Title != "Flood in Region A" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Category != "Flood, Flash Flood" {
		t.Errorf("Category = %q", rec.Category)
	}
	if rec.Region != "Kenya, Somalia" {
		t.Errorf("Region = %q", rec.Region)
	}
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !rec.OccurredAt.Equal(want) {
		t.Errorf("OccurredAt = %v, want %v", rec.OccurredAt, want)
	}
	if rec.HasEmbedding() {
		t.Error("normalization must not attach an embedding")
	}
}

func TestNormalizeMissingOptionals(t *testing.T) {
	d := sampleDisaster()
	d.Fields.Description = ""
	d.Fields.URL = ""
	d.Fields.Country = nil
	d.Fields.Type = nil

	rec, err := Normalize(d)
	if err != nil {
		t.Fatalf("missing optionals must not fail normalization: %v", err)
	}
	if rec.Description != "" || rec.SourceURL != "" || rec.Region != "" || rec.Category != "" {
		t.Errorf("optionals should normalize to empty: %+v", rec)
	}
}

func TestNormalizeBadDate(t *testing.T) {
	tests := []string{"", "yesterday", "2024-13-45T99:00:00Z"}
	for _, created := range tests {
		d := sampleDisaster()
		d.Fields.Date.Created = created
		if _, err := Normalize(d); err == nil {
			t.Errorf("created=%q: expected error", created)
		}
	}
}

func TestNormalizeAcceptsZuluOffset(t *testing.T) {
	d := sampleDisaster()
	d.Fields.Date.Created = "2024-03-01T12:30:00Z"
	rec, err := Normalize(d)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.OccurredAt.Hour() != 12 {
		t.Errorf("OccurredAt = %v", rec.OccurredAt)
	}
}
