package integration

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abelzeko/river-alert/internal/entities"
	"gopkg.in/yaml.v3"
)

const (
	minTimeout = 10 * time.Second
	maxTimeout = 90 * time.Second

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// SourceConfig describes one station and the ordered strategies that can read it
type SourceConfig struct {
	StationID   string           `yaml:"station_id"`
	StationName string           `yaml:"station_name"`
	Timezone    string           `yaml:"timezone"`
	Strategies  []StrategyConfig `yaml:"strategies"`
}

// StrategyConfig configures a single fetch strategy. Only the fields
// relevant to Kind are read.
type StrategyConfig struct {
	Name      string                `yaml:"name"`
	Kind      entities.StrategyKind `yaml:"kind"`
	URL       string                `yaml:"url"`
	Timeout   Duration              `yaml:"timeout"`
	UserAgent string                `yaml:"user_agent"`

	// static_html, rendered_html
	Table TableSpec `yaml:"table"`

	// rendered_html
	WaitSelector string   `yaml:"wait_selector"`
	WaitTimeout  Duration `yaml:"wait_timeout"`

	// api
	Token  TokenSpec `yaml:"token"`
	Method string    `yaml:"method"`
	Body   string    `yaml:"body"`

	// embedded_json
	Variable string `yaml:"variable"`

	// api, embedded_json
	Fields FieldPaths `yaml:"fields"`
}

// TableSpec locates the station row in an HTML table and the cells to read.
type TableSpec struct {
	// Anchor is text that identifies the station row, usually the station name.
	Anchor string `yaml:"anchor"`
	// AnchorSelector narrows which cells are searched for Anchor.
	AnchorSelector string `yaml:"anchor_selector"`
	WaterLevel     Column `yaml:"water_level"`
	BankLevel      Column `yaml:"bank_level"`
	ObservedAt     Column `yaml:"observed_at"`
	Status         Column `yaml:"status"`
	// StatusSelector reads the status from an element inside the row (e.g. span.badge).
	StatusSelector string `yaml:"status_selector"`
}

// Column picks a cell by header label, by position, or both (header first).
type Column struct {
	Header string `yaml:"header"`
	Index  *int   `yaml:"index"`
}

// IsZero reports whether the column was left unconfigured
func (c Column) IsZero() bool {
	return c.Header == "" && c.Index == nil
}

// UnmarshalYAML accepts a bare int (position), a bare string (header) or a mapping
func (c *Column) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Tag == "!!int" {
			var i int
			if err := node.Decode(&i); err != nil {
				return err
			}
			c.Index = &i
			return nil
		}
		c.Header = node.Value
		return nil
	}
	type plain Column
	return node.Decode((*plain)(c))
}

// TokenSpec describes how the api strategy obtains its session token
type TokenSpec struct {
	URL      string `yaml:"url"`
	MetaName string `yaml:"meta_name"`
	Cookie   string `yaml:"cookie"`
	Header   string `yaml:"header"`
}

// FieldPaths are gjson paths into a JSON document
type FieldPaths struct {
	StationID   string `yaml:"station_id"`
	StationName string `yaml:"station_name"`
	WaterLevel  string `yaml:"water_level"`
	BankLevel   string `yaml:"bank_level"`
	Status      string `yaml:"status"`
	ObservedAt  string `yaml:"observed_at"`
}

// Duration is a time.Duration written as "15s" in YAML
type Duration time.Duration

// UnmarshalYAML parses a Go duration string
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	if v < 0 {
		return fmt.Errorf("duration must be >= 0: %q", node.Value)
	}
	*d = Duration(v)
	return nil
}

// timeoutOr returns d clamped to the allowed range, or def when unset
func timeoutOr(d Duration, def time.Duration) time.Duration {
	t := time.Duration(d)
	if t <= 0 {
		t = def
	}
	if t < minTimeout {
		t = minTimeout
	}
	if t > maxTimeout {
		t = maxTimeout
	}
	return t
}

func intPtr(i int) *int { return &i }

// DefaultSourceConfig reads the In Buri station from the Sing Buri
// thaiwater page, first as plain HTML and then through a headless browser.
func DefaultSourceConfig() SourceConfig {
	table := TableSpec{
		Anchor:         "อินทร์บุรี",
		AnchorSelector: `th[scope="row"], td`,
		WaterLevel:     Column{Header: "ระดับน้ำ", Index: intPtr(2)},
		BankLevel:      Column{Header: "ระดับตลิ่ง", Index: intPtr(3)},
		ObservedAt:     Column{Header: "เวลา", Index: intPtr(7)},
		StatusSelector: "span.badge",
	}
	return SourceConfig{
		StationID:   "inburi",
		StationName: "อินทร์บุรี",
		Timezone:    "Asia/Bangkok",
		Strategies: []StrategyConfig{
			{
				Name:    "thaiwater-static",
				Kind:    entities.KindStaticHTML,
				URL:     "https://singburi.thaiwater.net/wl",
				Timeout: Duration(15 * time.Second),
				Table:   table,
			},
			{
				Name:         "thaiwater-rendered",
				Kind:         entities.KindRenderedHTML,
				URL:          "https://singburi.thaiwater.net/wl",
				Timeout:      Duration(60 * time.Second),
				WaitSelector: "table tbody tr",
				WaitTimeout:  Duration(20 * time.Second),
				Table:        table,
			},
		},
	}
}

// LoadSourceConfig reads a YAML source config. An empty path returns the default.
func LoadSourceConfig(path string) (SourceConfig, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSourceConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceConfig{}, fmt.Errorf("failed to read source config: %w", err)
	}
	return ParseSourceConfig(data)
}

// ParseSourceConfig decodes and validates a YAML source config
func ParseSourceConfig(data []byte) (SourceConfig, error) {
	var cfg SourceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SourceConfig{}, fmt.Errorf("failed to parse source config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return SourceConfig{}, err
	}
	return cfg, nil
}

// Validate checks that every strategy has what its kind needs
func (c SourceConfig) Validate() error {
	if c.StationID == "" {
		return fmt.Errorf("source config: station_id is required")
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("source config: at least one strategy is required")
	}
	for i, s := range c.Strategies {
		where := fmt.Sprintf("source config: strategies[%d]", i)
		if s.URL == "" {
			return fmt.Errorf("%s: url is required", where)
		}
		switch s.Kind {
		case entities.KindStaticHTML, entities.KindRenderedHTML:
			if s.Table.Anchor == "" {
				return fmt.Errorf("%s: table.anchor is required", where)
			}
			if s.Table.WaterLevel.IsZero() {
				return fmt.Errorf("%s: table.water_level is required", where)
			}
			if s.Table.ObservedAt.IsZero() {
				return fmt.Errorf("%s: table.observed_at is required", where)
			}
			if s.Kind == entities.KindRenderedHTML && s.WaitSelector == "" {
				return fmt.Errorf("%s: wait_selector is required", where)
			}
		case entities.KindAPI:
			if s.Token.URL == "" || (s.Token.MetaName == "" && s.Token.Cookie == "") {
				return fmt.Errorf("%s: token.url and token.meta_name or token.cookie are required", where)
			}
			if s.Fields.WaterLevel == "" || s.Fields.ObservedAt == "" {
				return fmt.Errorf("%s: fields.water_level and fields.observed_at are required", where)
			}
		case entities.KindEmbeddedJSON:
			if s.Variable == "" {
				return fmt.Errorf("%s: variable is required", where)
			}
			if s.Fields.WaterLevel == "" || s.Fields.ObservedAt == "" {
				return fmt.Errorf("%s: fields.water_level and fields.observed_at are required", where)
			}
		default:
			return fmt.Errorf("%s: unknown kind %q", where, s.Kind)
		}
	}
	return nil
}

// strategyName returns the configured name or one derived from the kind
func (s StrategyConfig) strategyName(i int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("%s#%d", s.Kind, i+1)
}
