// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abelzeko/river-alert/internal/detector"
	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/abelzeko/river-alert/internal/metrics"
	"github.com/abelzeko/river-alert/internal/normalize"
	"github.com/abelzeko/river-alert/internal/notifier"
	"github.com/abelzeko/river-alert/internal/repository"
	"github.com/rs/zerolog/log"
)

// Run outcomes, also used as the metrics label
const (
	OutcomeAlert            = "alert"
	OutcomeNoAlert          = "no_alert"
	OutcomeSuppressed       = "suppressed"
	OutcomeFetchFailed      = "fetch_failed"
	OutcomeValidationFailed = "validation_failed"
	OutcomeStateFailed      = "state_failed"
	OutcomeSaveFailed       = "save_failed"
)

// Fetcher acquires one raw reading, trying every configured source
type Fetcher interface {
	Fetch(ctx context.Context) (entities.RawReading, error)
}

// RunResult describes what one run did
type RunResult struct {
	Outcome  string
	Reading  entities.Reading
	Decision detector.Decision
	// Notified is true when the alert message was delivered.
	Notified bool
	Saved    bool
}

// AlertUseCase runs the fetch, detect, notify and persist sequence for one station
type AlertUseCase struct {
	fetcher    Fetcher
	normalizer *normalize.Normalizer
	store      repository.StateStore
	detector   *detector.Detector
	notifier   notifier.Notifier
	retry      bool
}

// NewAlertUseCase creates the use case. A nil notifier logs alerts instead
// of sending them.
func NewAlertUseCase(fetcher Fetcher, normalizer *normalize.Normalizer, store repository.StateStore,
	det *detector.Detector, n notifier.Notifier, retry bool) *AlertUseCase {
	return &AlertUseCase{
		fetcher:    fetcher,
		normalizer: normalizer,
		store:      store,
		detector:   det,
		notifier:   n,
		retry:      retry,
	}
}

// Run performs one run. An error is returned when no reading could be
// acquired or validated, when stored state cannot be read, or when the new
// state cannot be saved. A failed notification is not an error.
func (uc *AlertUseCase) Run(ctx context.Context, now time.Time) (res RunResult, err error) {
	started := time.Now()
	defer func() {
		metrics.ObserveRun(res.Outcome, started, time.Now())
	}()

	log.Info().Msg("Starting river level check...")
	raw, err := uc.fetcher.Fetch(ctx)
	if err != nil {
		res.Outcome = OutcomeFetchFailed
		return res, fmt.Errorf("failed to acquire reading: %w", err)
	}
	metrics.ReadingsTotal.WithLabelValues(string(raw.Source)).Inc()

	reading, err := uc.normalizer.Normalize(raw)
	if err != nil {
		res.Outcome = OutcomeValidationFailed
		return res, fmt.Errorf("failed to validate reading from %s: %w", raw.Source, err)
	}
	res.Reading = reading
	metrics.WaterLevelMeters.Set(reading.WaterLevelM)
	if reading.DistanceToBankM != nil {
		metrics.DistanceToBankMeters.Set(*reading.DistanceToBankM)
	}
	log.Info().Str("station", reading.StationID).Float64("water_level_m", reading.WaterLevelM).
		Str("status", reading.Status.String()).Time("observed_at", reading.ObservedAt).
		Str("source", string(reading.Source)).Msg("Reading acquired")

	prev, err := uc.store.Load(ctx)
	if err != nil {
		var corrupt *repository.StateCorruptError
		if !errors.As(err, &corrupt) {
			res.Outcome = OutcomeStateFailed
			return res, fmt.Errorf("failed to load state: %w", err)
		}
		log.Warn().Err(err).Msg("Stored state is corrupt, treating this run as the first observation")
		prev = nil
	}

	decision := uc.detector.Evaluate(reading, prev, now)
	res.Decision = decision

	next := entities.StateFromReading(reading).CarryAlert(prev)
	switch {
	case decision.Alert:
		res.Outcome = OutcomeAlert
		log.Info().Strs("reasons", decision.Reasons).Str("fingerprint", decision.Fingerprint).Msg("Significant change detected")
		if res.Notified = uc.notify(ctx, reading, decision); res.Notified {
			next = next.WithAlert(now, decision.Fingerprint)
			for _, r := range decision.Rules {
				metrics.AlertsTotal.WithLabelValues(string(r)).Inc()
			}
		}
	case decision.Suppressed:
		res.Outcome = OutcomeSuppressed
		log.Info().Strs("reasons", decision.Reasons).Msg("Change already alerted within cooldown, not notifying")
	default:
		res.Outcome = OutcomeNoAlert
		log.Info().Strs("reasons", decision.Reasons).Msg("No significant change")
	}

	if !uc.shouldPersist(decision) {
		log.Debug().Msg("Persist policy skips saving this reading")
		return res, nil
	}
	if err := uc.store.Save(ctx, next); err != nil {
		res.Outcome = OutcomeSaveFailed
		return res, fmt.Errorf("failed to save state: %w", err)
	}
	res.Saved = true
	log.Info().Msg("State saved")
	return res, nil
}

// shouldPersist reports whether the new state is written. The first
// observation is always stored so later runs have a baseline.
func (uc *AlertUseCase) shouldPersist(d detector.Decision) bool {
	return d.Alert || d.FirstRun || uc.detector.Policy().PersistAlways
}

// notify sends the alert, retrying once when configured. It reports
// whether the message was delivered.
func (uc *AlertUseCase) notify(ctx context.Context, reading entities.Reading, d detector.Decision) bool {
	message := notifier.Format(reading, d)
	if uc.notifier == nil {
		log.Warn().Str("message", message).Msg("Notifications are not configured, alert logged only")
		return true
	}

	attempts := 1
	if uc.retry {
		attempts = 2
	}
	for i := 1; i <= attempts; i++ {
		err := uc.notifier.Send(ctx, message)
		if err == nil {
			log.Info().Int("attempt", i).Msg("Alert sent")
			return true
		}
		metrics.NotifyFailuresTotal.Inc()
		log.Error().Err(err).Int("attempt", i).Msg("Failed to send alert")
	}
	return false
}
