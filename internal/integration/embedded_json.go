package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/tidwall/gjson"
)

// EmbeddedScriptJSON reads a JSON literal assigned to a variable inside an inline script
type EmbeddedScriptJSON struct {
	name    string
	cfg     StrategyConfig
	timeout time.Duration
	client  *http.Client
}

// NewEmbeddedScriptJSON creates an embedded script JSON strategy
func NewEmbeddedScriptJSON(name string, cfg StrategyConfig) *EmbeddedScriptJSON {
	timeout := timeoutOr(cfg.Timeout, 15*time.Second)
	return &EmbeddedScriptJSON{
		name:    name,
		cfg:     cfg,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *EmbeddedScriptJSON) Name() string                { return e.name }
func (e *EmbeddedScriptJSON) Kind() entities.StrategyKind { return entities.KindEmbeddedJSON }

// Fetch loads the page, cuts the literal out of the script and reads the fields
func (e *EmbeddedScriptJSON) Fetch(ctx context.Context) (entities.RawReading, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	doc, err := fetchDocument(ctx, e.client, e.cfg.URL, e.cfg.UserAgent)
	if err != nil {
		return entities.RawReading{}, &FetchError{Strategy: e.name, Err: err}
	}

	literal := ""
	lastErr := fmt.Errorf("no inline script mentions %q", e.cfg.Variable)
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := s.Text()
		if !strings.Contains(src, e.cfg.Variable) {
			return true
		}
		lit, err := extractLiteral(src, e.cfg.Variable)
		if err != nil {
			lastErr = err
			return true
		}
		literal = lit
		return false
	})
	if literal == "" {
		return entities.RawReading{}, &FetchError{Strategy: e.name, Err: lastErr}
	}
	if !gjson.Valid(literal) {
		return entities.RawReading{}, fetchErr(e.name, "literal assigned to %q is not valid JSON", e.cfg.Variable)
	}

	raw, err := extractFields(literal, e.cfg.Fields)
	if err != nil {
		return entities.RawReading{}, &FetchError{Strategy: e.name, Err: err}
	}
	if err := checkRaw(e.name, raw); err != nil {
		return entities.RawReading{}, err
	}
	return raw, nil
}

var errUnterminated = errors.New("unterminated literal")

// extractLiteral finds `name = [...]` (or `name: {...}`) in src and returns
// the bracketed literal. Brackets inside string literals are ignored.
func extractLiteral(src, name string) (string, error) {
	for offset := 0; ; {
		idx := strings.Index(src[offset:], name)
		if idx < 0 {
			return "", fmt.Errorf("no assignment to %q found", name)
		}
		start := offset + idx
		pos := start + len(name)
		offset = pos
		// whole identifiers only: "data" must not match inside "metadata"
		if start > 0 && isIdentByte(src[start-1]) {
			continue
		}
		if pos < len(src) && isIdentByte(src[pos]) {
			continue
		}

		// allow a closing quote when the name is an object key
		if pos < len(src) && (src[pos] == '"' || src[pos] == '\'') {
			pos++
		}
		pos = skipSpace(src, pos)
		if pos >= len(src) || (src[pos] != '=' && src[pos] != ':') {
			continue
		}
		pos = skipSpace(src, pos+1)
		if pos >= len(src) || (src[pos] != '[' && src[pos] != '{') {
			continue
		}

		end, err := matchBracket(src, pos)
		if err != nil {
			return "", err
		}
		return src[pos : end+1], nil
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// matchBracket returns the index of the bracket closing the one at start
func matchBracket(s string, start int) (int, error) {
	depth := 0
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, errUnterminated
}
