package semantic

import (
	"fmt"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/domain"
	pb "github.com/qdrant/go-client/qdrant"
)

// Payload keys. The payload carries every field a search response needs so
// queries are served from the index alone.
const (
	keyExternalID  = "reliefwebId"
	keyTitle       = "title"
	keyDate        = "date"
	keyCategory    = "type"
	keyRegion      = "country"
	keyStatus      = "status"
	keyDescription = "description"
	keyURL         = "url"
)

func toPayload(rec domain.Record) map[string]*pb.Value {
	p := map[string]*pb.Value{
		keyExternalID: strValue(rec.ExternalID),
		keyTitle:      strValue(rec.Title),
		keyDate:       strValue(rec.OccurredAt.UTC().Format(time.RFC3339)),
		keyCategory:   strValue(rec.Category),
		keyRegion:     strValue(rec.Region),
		keyStatus:     strValue(rec.Status),
	}
	if rec.Description != "" {
		p[keyDescription] = strValue(rec.Description)
	}
	if rec.SourceURL != "" {
		p[keyURL] = strValue(rec.SourceURL)
	}
	return p
}

func fromPayload(p map[string]*pb.Value) (domain.Record, error) {
	get := func(key string) string { return p[key].GetStringValue() }

	id := get(keyExternalID)
	if id == "" {
		return domain.Record{}, fmt.Errorf("payload missing %s", keyExternalID)
	}
	occurred, err := time.Parse(time.RFC3339, get(keyDate))
	if err != nil {
		return domain.Record{}, fmt.Errorf("payload date for %s: %w", id, err)
	}

	return domain.Record{
		ExternalID:  id,
		Title:       get(keyTitle),
		OccurredAt:  occurred,
		Category:    get(keyCategory),
		Region:      get(keyRegion),
		Status:      get(keyStatus),
		Description: get(keyDescription),
		SourceURL:   get(keyURL),
	}, nil
}

func strValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}
