// Package detector decides whether a new reading is significant enough to alert on
package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/abelzeko/river-alert/internal/normalize"
)

// Epsilon absorbs float noise in threshold comparisons, so that a delta
// computed as 5.50-5.40 still meets a 0.10 threshold.
const Epsilon = 1e-9

// Rule names a single alert trigger
type Rule string

const (
	RuleFirstObservation Rule = "first_observation"
	RuleMagnitude        Rule = "magnitude"
	RuleStatusEscalation Rule = "status_escalation"
	RuleNearBank         Rule = "near_bank"
	RuleAboveBank        Rule = "above_bank"
	RuleObservedAt       Rule = "observed_at"
)

// Policy holds the thresholds that define a significant change
type Policy struct {
	MagnitudeThresholdM float64
	NearBankThresholdM  float64
	Cooldown            time.Duration
	FirstRunAlerts      bool
	// AlertOnTimeChange lets a new observation time alone trigger an alert.
	AlertOnTimeChange bool
	// PersistAlways saves the latest reading on every run, not only when alerting.
	PersistAlways bool
}

// DefaultPolicy returns the documented defaults
func DefaultPolicy() Policy {
	return Policy{
		MagnitudeThresholdM: 0.10,
		NearBankThresholdM:  1.0,
		Cooldown:            6 * time.Hour,
		FirstRunAlerts:      false,
		PersistAlways:       true,
	}
}

// Decision is the outcome of one evaluation
type Decision struct {
	Alert bool
	// Rules lists every rule that matched, including suppressed and annotation-only ones.
	Rules   []Rule
	Reasons []string
	// Fingerprint identifies the triggering rule set and level; empty when nothing triggered.
	Fingerprint string
	// Suppressed is true when rules matched but cooldown silenced them.
	Suppressed bool
	FirstRun   bool
}

// Has reports whether rule matched
func (d Decision) Has(rule Rule) bool {
	for _, r := range d.Rules {
		if r == rule {
			return true
		}
	}
	return false
}

// Detector evaluates readings against a policy
type Detector struct {
	policy Policy
}

// New creates a detector
func New(policy Policy) *Detector {
	return &Detector{policy: policy}
}

// Policy returns the detector's policy
func (d *Detector) Policy() Policy {
	return d.policy
}

// Evaluate compares current with the previous state. now is used for cooldown.
func (d *Detector) Evaluate(current entities.Reading, previous *entities.StoredState, now time.Time) Decision {
	var dec Decision
	var triggers []Rule
	add := func(rule Rule, reason string, triggering bool) {
		dec.Rules = append(dec.Rules, rule)
		dec.Reasons = append(dec.Reasons, reason)
		if triggering {
			triggers = append(triggers, rule)
		}
	}

	if previous == nil {
		dec.FirstRun = true
		if d.policy.FirstRunAlerts {
			add(RuleFirstObservation, "first observation", true)
		}
	} else {
		delta := current.WaterLevelM - previous.WaterLevelM
		if math.Abs(delta)+Epsilon >= d.policy.MagnitudeThresholdM {
			add(RuleMagnitude, fmt.Sprintf("magnitude change %+.2fm", delta), true)
		}

		prevTier := normalize.ClassifyStatus(previous.StatusText)
		if current.Status > prevTier {
			add(RuleStatusEscalation, fmt.Sprintf("status escalation %s→%s", prevTier, current.Status), true)
		}
	}

	overflow := false
	if dist := current.DistanceToBankM; dist != nil {
		switch {
		case *dist < -Epsilon:
			overflow = true
			add(RuleAboveBank, fmt.Sprintf("above bank (%.2fm over)", -*dist), true)
		case previous != nil && *dist <= d.policy.NearBankThresholdM+Epsilon:
			// on a first run proximity is reported through first_observation
			add(RuleNearBank, fmt.Sprintf("near bank (%.2fm)", *dist), true)
		}
	}

	if previous != nil && !previous.ObservedAt.Equal(current.ObservedAt) {
		if d.policy.AlertOnTimeChange {
			add(RuleObservedAt, "new observation time "+current.ObservedAt.Format("2006-01-02 15:04"), true)
		} else if len(triggers) > 0 {
			add(RuleObservedAt, "new observation time "+current.ObservedAt.Format("2006-01-02 15:04"), false)
		}
	}

	if len(triggers) == 0 {
		return dec
	}

	dec.Fingerprint = Fingerprint(triggers, current.WaterLevelM)
	dec.Alert = true

	if !overflow && d.inCooldown(previous, dec.Fingerprint, now) {
		dec.Alert = false
		dec.Suppressed = true
	}
	return dec
}

func (d *Detector) inCooldown(previous *entities.StoredState, fingerprint string, now time.Time) bool {
	if previous == nil || previous.LastAlertAt == nil || previous.LastAlertFingerprint == nil {
		return false
	}
	if *previous.LastAlertFingerprint != fingerprint {
		return false
	}
	return now.Sub(*previous.LastAlertAt) < d.policy.Cooldown
}

// Fingerprint hashes the triggering rule set together with the water level
// rounded to centimetres.
func Fingerprint(rules []Rule, waterLevel float64) string {
	names := make([]string, 0, len(rules))
	for _, r := range rules {
		names = append(names, string(r))
	}
	sort.Strings(names)

	payload := fmt.Sprintf("%s|%.2f", strings.Join(names, ","), waterLevel)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}
