// Package normalize turns string-typed scraped readings into typed entities.Reading values
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abelzeko/river-alert/internal/entities"
)

// ValidationError is returned for a reading that was fetched but cannot be
// turned into a valid Reading.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Normalizer validates raw readings for one station
type Normalizer struct {
	stationID   string
	stationName string
	loc         *time.Location
}

// NewNormalizer creates a normalizer. stationID and stationName are used
// when a strategy does not report them; loc is the source's wall-clock zone.
func NewNormalizer(stationID, stationName string, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{stationID: stationID, stationName: stationName, loc: loc}
}

// Normalize converts raw into a Reading
func (n *Normalizer) Normalize(raw entities.RawReading) (entities.Reading, error) {
	water, err := ParseNumber(raw.WaterLevel)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, ErrPlaceholder) {
			reason = "water level is missing"
		}
		return entities.Reading{}, &ValidationError{Field: "water_level", Value: raw.WaterLevel, Reason: reason}
	}

	var bank *float64
	if v, err := ParseNumber(raw.BankLevel); err == nil {
		bank = &v
	} else if !errors.Is(err, ErrPlaceholder) {
		return entities.Reading{}, &ValidationError{Field: "bank_level", Value: raw.BankLevel, Reason: err.Error()}
	}

	observedAt, err := ParseObservedAt(raw.ObservedAt, n.loc)
	if err != nil {
		return entities.Reading{}, &ValidationError{Field: "observed_at", Value: raw.ObservedAt, Reason: err.Error()}
	}

	stationID := strings.TrimSpace(raw.StationID)
	if stationID == "" {
		stationID = n.stationID
	}
	stationName := strings.TrimSpace(raw.StationName)
	if stationName == "" {
		stationName = n.stationName
	}
	statusText := strings.TrimSpace(raw.Status)

	reading, err := entities.NewReading(stationID, stationName, water, bank,
		statusText, ClassifyStatus(statusText), observedAt, raw.Source)
	if err != nil {
		return entities.Reading{}, &ValidationError{Field: "water_level", Value: raw.WaterLevel, Reason: err.Error()}
	}
	return reading, nil
}
