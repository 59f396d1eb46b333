// Package entities contains the core domain objects for the river-alert application
package entities

import (
	"errors"
	"math"
	"time"
)

// StatusTier is the classified severity of an upstream status label.
// Tiers are ordered: a higher value is more severe.
type StatusTier int

const (
	StatusUnknown StatusTier = iota
	StatusNormal
	StatusWarning
	StatusOverflow
)

func (s StatusTier) String() string {
	switch s {
	case StatusNormal:
		return "NORMAL"
	case StatusWarning:
		return "WARNING"
	case StatusOverflow:
		return "OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// StrategyKind identifies the fetch mechanism that produced a reading
type StrategyKind string

const (
	KindStaticHTML   StrategyKind = "static_html"
	KindRenderedHTML StrategyKind = "rendered_html"
	KindAPI          StrategyKind = "api"
	KindEmbeddedJSON StrategyKind = "embedded_json"
)

// RawReading is what a fetch strategy extracts from the upstream source,
// before any typing or validation beyond "the water level looks numeric".
type RawReading struct {
	StationID   string
	StationName string
	WaterLevel  string // e.g. "5.65", "5.65 ม."
	BankLevel   string // may be "-" or empty
	Status      string // free text label
	ObservedAt  string // source-local or RFC3339 text
	Source      StrategyKind
}

// ErrMissingWaterLevel is returned when a Reading would be built without a usable water level.
var ErrMissingWaterLevel = errors.New("water level is required")

// Reading is one normalized observation for a station
type Reading struct {
	StationID       string
	StationName     string
	WaterLevelM     float64
	BankLevelM      *float64 // nil when the source does not publish it
	DistanceToBankM *float64 // bank minus water; negative means above bank
	StatusText      string
	Status          StatusTier
	ObservedAt      time.Time
	Source          StrategyKind
}

// NewReading builds a Reading and derives the distance to bank.
func NewReading(stationID, stationName string, waterLevel float64, bankLevel *float64,
	statusText string, status StatusTier, observedAt time.Time, source StrategyKind) (Reading, error) {
	if math.IsNaN(waterLevel) || math.IsInf(waterLevel, 0) {
		return Reading{}, ErrMissingWaterLevel
	}

	r := Reading{
		StationID:   stationID,
		StationName: stationName,
		WaterLevelM: waterLevel,
		StatusText:  statusText,
		Status:      status,
		ObservedAt:  observedAt,
		Source:      source,
	}
	if bankLevel != nil {
		bank := *bankLevel
		dist := roundTo(bank-waterLevel, 3)
		r.BankLevelM = &bank
		r.DistanceToBankM = &dist
	}
	return r, nil
}

// roundTo rounds v to the given number of decimal places
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// StoredState is the persisted record of the last observed reading plus
// the metadata of the last alert that was sent.
type StoredState struct {
	StationID            string     `json:"station_id"`
	StationName          string     `json:"station_name"`
	WaterLevelM          float64    `json:"water_level_m"`
	BankLevelM           *float64   `json:"bank_level_m"`
	StatusText           string     `json:"status_text"`
	ObservedAt           time.Time  `json:"observed_at"`
	LastAlertAt          *time.Time `json:"last_alert_at"`
	LastAlertFingerprint *string    `json:"last_alert_fingerprint"`
}

// StateFromReading copies the persisted fields of a reading into a new state.
// Alert metadata is left empty.
func StateFromReading(r Reading) StoredState {
	st := StoredState{
		StationID:   r.StationID,
		StationName: r.StationName,
		WaterLevelM: r.WaterLevelM,
		StatusText:  r.StatusText,
		ObservedAt:  r.ObservedAt,
	}
	if r.BankLevelM != nil {
		bank := *r.BankLevelM
		st.BankLevelM = &bank
	}
	return st
}

// WithAlert returns a copy of the state stamped with alert metadata
func (s StoredState) WithAlert(at time.Time, fingerprint string) StoredState {
	s.LastAlertAt = &at
	s.LastAlertFingerprint = &fingerprint
	return s
}

// CarryAlert returns a copy of s with the alert metadata of prev
func (s StoredState) CarryAlert(prev *StoredState) StoredState {
	if prev == nil {
		return s
	}
	s.LastAlertAt = prev.LastAlertAt
	s.LastAlertFingerprint = prev.LastAlertFingerprint
	return s
}
