// Package domain defines the core record model, error kinds, and validation
// for the crisiswatch engine. It acts as the validation gate at pipeline and
// API entry points.
package domain

import "time"

// Record is the internal representation of one disaster/crisis event.
// ExternalID is the upstream source's stable key and the system's primary key.
type Record struct {
	ExternalID  string    `json:"reliefwebId" bson:"reliefwebId"`
	Title       string    `json:"title" bson:"title"`
	OccurredAt  time.Time `json:"date" bson:"date"`
	Category    string    `json:"type" bson:"type"`
	Region      string    `json:"country" bson:"country"`
	Status      string    `json:"status" bson:"status"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	SourceURL   string    `json:"url,omitempty" bson:"url,omitempty"`
	Embedding   []float32 `json:"-" bson:"embedding,omitempty"`
	Geo         *Point    `json:"location,omitempty" bson:"location,omitempty"`
}

// Point is a GeoJSON-style longitude/latitude pair, stored for map display.
type Point struct {
	Type        string     `json:"type" bson:"type"`
	Coordinates [2]float64 `json:"coordinates" bson:"coordinates"` // [lon, lat]
}

// HasEmbedding reports whether the record carries a vector and is therefore
// a candidate for nearest-neighbor search.
func (r Record) HasEmbedding() bool { return len(r.Embedding) > 0 }

// EmbeddingText returns the text fed to the embedding model: title plus
// description when present.
func (r Record) EmbeddingText() string {
	if r.Description == "" {
		return r.Title
	}
	return r.Title + " " + r.Description
}

// ScoredRecord pairs a record with its similarity score from a vector search.
type ScoredRecord struct {
	Record
	Score float32 `json:"score"`
}
