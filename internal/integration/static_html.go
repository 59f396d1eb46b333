package integration

import (
	"context"
	"net/http"
	"time"

	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/rs/zerolog/log"
)

// StaticHTML reads the station row from a server-rendered HTML table
type StaticHTML struct {
	name    string
	cfg     StrategyConfig
	timeout time.Duration
	client  *http.Client
}

// NewStaticHTML creates a static HTML strategy
func NewStaticHTML(name string, cfg StrategyConfig) *StaticHTML {
	timeout := timeoutOr(cfg.Timeout, 15*time.Second)
	return &StaticHTML{
		name:    name,
		cfg:     cfg,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *StaticHTML) Name() string                { return s.name }
func (s *StaticHTML) Kind() entities.StrategyKind { return entities.KindStaticHTML }

// Fetch retrieves the page and extracts the station row
func (s *StaticHTML) Fetch(ctx context.Context) (entities.RawReading, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log.Debug().Str("url", s.cfg.URL).Msg("Sending HTTP request to water monitoring website")
	doc, err := fetchDocument(ctx, s.client, s.cfg.URL, s.cfg.UserAgent)
	if err != nil {
		return entities.RawReading{}, &FetchError{Strategy: s.name, Err: err}
	}

	raw, err := parseStationRow(doc, s.cfg.Table)
	if err != nil {
		return entities.RawReading{}, &FetchError{Strategy: s.name, Err: err}
	}
	if err := checkRaw(s.name, raw); err != nil {
		return entities.RawReading{}, err
	}
	return raw, nil
}
