// Package integration fetches station readings from external web sources
package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/abelzeko/river-alert/internal/metrics"
	"github.com/abelzeko/river-alert/internal/normalize"
	"github.com/rs/zerolog/log"
)

// Strategy is one mechanism for reading a station from upstream
type Strategy interface {
	Name() string
	Kind() entities.StrategyKind
	// Fetch returns a raw reading whose water level is known to be numeric,
	// or a *FetchError.
	Fetch(ctx context.Context) (entities.RawReading, error)
}

// FetchError is an expected failure of a single strategy: network, timeout
// or a page that no longer has the expected shape.
type FetchError struct {
	Strategy string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fetchErr(strategy string, format string, args ...any) *FetchError {
	return &FetchError{Strategy: strategy, Err: fmt.Errorf(format, args...)}
}

// ChainError is returned when every strategy in a chain failed
type ChainError struct {
	Failures []*FetchError
}

func (e *ChainError) Error() string {
	if len(e.Failures) == 0 {
		return "no fetch strategies configured"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("all %d fetch strategies failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Chain tries strategies in priority order
type Chain struct {
	strategies []Strategy
}

// NewChain creates a chain over the given strategies, highest priority first
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Strategies returns the chain's strategies in order
func (c *Chain) Strategies() []Strategy {
	return c.strategies
}

// Fetch returns the first successful reading, tagged with the strategy kind
// that produced it. If all strategies fail it returns a *ChainError.
func (c *Chain) Fetch(ctx context.Context) (entities.RawReading, error) {
	var failures []*FetchError
	for _, s := range c.strategies {
		log.Info().Str("strategy", s.Name()).Msg("Fetching station reading")
		raw, err := s.Fetch(ctx)
		if err == nil {
			raw.Source = s.Kind()
			log.Info().Str("strategy", s.Name()).Str("water_level", raw.WaterLevel).
				Str("observed_at", raw.ObservedAt).Msg("Strategy succeeded")
			return raw, nil
		}

		var fe *FetchError
		if !errors.As(err, &fe) {
			fe = &FetchError{Strategy: s.Name(), Err: err}
		}
		failures = append(failures, fe)
		metrics.StrategyFailuresTotal.WithLabelValues(s.Name()).Inc()
		log.Warn().Str("strategy", s.Name()).Err(fe.Err).Msg("Strategy failed, trying next")

		if ctx.Err() != nil {
			break
		}
	}
	return entities.RawReading{}, &ChainError{Failures: failures}
}

// checkRaw enforces that a strategy never hands back a reading without a
// numeric water level.
func checkRaw(strategy string, raw entities.RawReading) error {
	if _, err := normalize.ParseNumber(raw.WaterLevel); err != nil {
		return fetchErr(strategy, "water level %q is not numeric: %v", raw.WaterLevel, err)
	}
	return nil
}

// BuildChain turns a source config into a chain. newBrowser is used by
// rendered_html strategies; nil selects headless Chrome.
func BuildChain(cfg SourceConfig, newBrowser BrowserFactory) (*Chain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if newBrowser == nil {
		newBrowser = NewChromeBrowser
	}

	strategies := make([]Strategy, 0, len(cfg.Strategies))
	for i, sc := range cfg.Strategies {
		name := sc.strategyName(i)
		switch sc.Kind {
		case entities.KindStaticHTML:
			strategies = append(strategies, NewStaticHTML(name, sc))
		case entities.KindRenderedHTML:
			strategies = append(strategies, NewRenderedHTML(name, sc, newBrowser))
		case entities.KindAPI:
			strategies = append(strategies, NewAuthenticatedAPI(name, sc))
		case entities.KindEmbeddedJSON:
			strategies = append(strategies, NewEmbeddedScriptJSON(name, sc))
		}
	}
	return NewChain(strategies...), nil
}
