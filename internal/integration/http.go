package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 8 << 20

// request describes one outbound HTTP call made by a strategy
type request struct {
	method    string
	url       string
	body      string
	userAgent string
	header    http.Header
}

// fetchBody performs the request and returns the body of a 2xx response
func fetchBody(ctx context.Context, client *http.Client, r request) ([]byte, error) {
	method := r.method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if r.body != "" {
		body = bytes.NewBufferString(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	ua := r.userAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	log.Debug().Str("method", method).Str("url", r.url).Msg("Sending HTTP request")
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", r.url, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("unexpected status code: %d %s: %s", res.StatusCode, r.url, strings.TrimSpace(string(msg)))
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", r.url, err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", r.url, maxBodyBytes)
	}
	return data, nil
}

// fetchDocument GETs a page and parses it as HTML
func fetchDocument(ctx context.Context, client *http.Client, url, userAgent string) (*goquery.Document, error) {
	data, err := fetchBody(ctx, client, request{url: url, userAgent: userAgent,
		header: http.Header{"Accept": []string{"text/html,application/xhtml+xml"}}})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse the webpage: %w", err)
	}
	return doc, nil
}
