package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/crisiswatch/crisiswatch/engine/domain"
	"github.com/crisiswatch/crisiswatch/engine/feed"
	"github.com/crisiswatch/crisiswatch/pkg/fn"
)

// fieldSeparator joins multi-valued upstream fields into display strings.
const fieldSeparator = ", "

// Normalize maps one upstream disaster entry into the internal record shape.
// Missing optional fields pass through as empty; an unparseable creation
// timestamp is the one defect surfaced as an error.
func Normalize(d feed.Disaster) (domain.Record, error) {
	occurred, err := parseCreated(d.Fields.Date.Created)
	if err != nil {
		return domain.Record{}, fmt.Errorf("record %s: %w", d.ID, err)
	}

	countries := fn.Map(d.Fields.Country, func(c feed.Country) string { return c.Name })

	return domain.Record{
		ExternalID:  d.ID,
		Title:       d.Fields.Name,
		OccurredAt:  occurred,
		Category:    strings.Join(d.Fields.Type, fieldSeparator),
		Region:      strings.Join(countries, fieldSeparator),
		Status:      d.Fields.Status,
		Description: d.Fields.Description,
		SourceURL:   d.Fields.URL,
	}, nil
}

// parseCreated accepts the timestamp shapes ReliefWeb serves: RFC3339 with
// either a numeric offset or Z.
func parseCreated(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing creation date")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable creation date %q: %w", s, err)
	}
	return t, nil
}
