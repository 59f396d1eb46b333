package integration

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"
)

// AuthenticatedAPI primes a session to obtain a CSRF token, then calls a
// JSON endpoint with it.
type AuthenticatedAPI struct {
	name    string
	cfg     StrategyConfig
	timeout time.Duration
}

// NewAuthenticatedAPI creates an authenticated API strategy
func NewAuthenticatedAPI(name string, cfg StrategyConfig) *AuthenticatedAPI {
	return &AuthenticatedAPI{
		name:    name,
		cfg:     cfg,
		timeout: timeoutOr(cfg.Timeout, 20*time.Second),
	}
}

func (a *AuthenticatedAPI) Name() string                { return a.name }
func (a *AuthenticatedAPI) Kind() entities.StrategyKind { return entities.KindAPI }

// Fetch performs the priming request and the JSON call
func (a *AuthenticatedAPI) Fetch(ctx context.Context) (entities.RawReading, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return entities.RawReading{}, fetchErr(a.name, "failed to create cookie jar: %v", err)
	}
	client := &http.Client{Timeout: a.timeout, Jar: jar}

	token, err := a.sessionToken(ctx, client, jar)
	if err != nil {
		return entities.RawReading{}, &FetchError{Strategy: a.name, Err: err}
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("X-Requested-With", "XMLHttpRequest")
	header.Set(a.tokenHeader(), token)
	if a.cfg.Body != "" {
		header.Set("Content-Type", "application/json")
	}
	method := strings.ToUpper(a.cfg.Method)

	body, err := fetchBody(ctx, client, request{
		method:    method,
		url:       a.cfg.URL,
		body:      a.cfg.Body,
		userAgent: a.cfg.UserAgent,
		header:    header,
	})
	if err != nil {
		return entities.RawReading{}, &FetchError{Strategy: a.name, Err: err}
	}
	if !gjson.ValidBytes(body) {
		return entities.RawReading{}, fetchErr(a.name, "response from %s is not valid JSON", a.cfg.URL)
	}

	raw, err := extractFields(string(body), a.cfg.Fields)
	if err != nil {
		return entities.RawReading{}, &FetchError{Strategy: a.name, Err: err}
	}
	if err := checkRaw(a.name, raw); err != nil {
		return entities.RawReading{}, err
	}
	return raw, nil
}

func (a *AuthenticatedAPI) tokenHeader() string {
	if a.cfg.Token.Header != "" {
		return a.cfg.Token.Header
	}
	return "X-CSRF-TOKEN"
}

// sessionToken loads the priming page and reads the token from a meta tag,
// falling back to a cookie set by that page.
func (a *AuthenticatedAPI) sessionToken(ctx context.Context, client *http.Client, jar http.CookieJar) (string, error) {
	tok := a.cfg.Token
	page, err := fetchBody(ctx, client, request{url: tok.URL, userAgent: a.cfg.UserAgent})
	if err != nil {
		return "", fmt.Errorf("priming request failed: %w", err)
	}

	if tok.MetaName != "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
		if err != nil {
			return "", fmt.Errorf("failed to parse priming page: %w", err)
		}
		token := strings.TrimSpace(doc.Find(fmt.Sprintf("meta[name=%q]", tok.MetaName)).AttrOr("content", ""))
		if token != "" {
			return token, nil
		}
	}

	if tok.Cookie != "" {
		u, err := url.Parse(tok.URL)
		if err != nil {
			return "", fmt.Errorf("invalid token url: %w", err)
		}
		for _, c := range jar.Cookies(u) {
			if c.Name != tok.Cookie {
				continue
			}
			if v, err := url.QueryUnescape(c.Value); err == nil {
				return v, nil
			}
			return c.Value, nil
		}
	}
	return "", fmt.Errorf("no session token found on %s", tok.URL)
}

// extractFields reads a raw reading out of a JSON document with gjson paths
func extractFields(doc string, paths FieldPaths) (entities.RawReading, error) {
	get := func(field, path string, required bool) (string, error) {
		if path == "" {
			return "", nil
		}
		res := gjson.Get(doc, path)
		if !res.Exists() {
			if required {
				return "", fmt.Errorf("field %s not found at path %q", field, path)
			}
			return "", nil
		}
		return strings.TrimSpace(res.String()), nil
	}

	var raw entities.RawReading
	var err error
	if raw.WaterLevel, err = get("water_level", paths.WaterLevel, true); err != nil {
		return raw, err
	}
	if raw.ObservedAt, err = get("observed_at", paths.ObservedAt, paths.ObservedAt != ""); err != nil {
		return raw, err
	}
	raw.StationID, _ = get("station_id", paths.StationID, false)
	raw.StationName, _ = get("station_name", paths.StationName, false)
	raw.BankLevel, _ = get("bank_level", paths.BankLevel, false)
	raw.Status, _ = get("status", paths.Status, false)
	return raw, nil
}
