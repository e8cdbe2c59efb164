package tronscan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/trc20watch/service/metrics"
	"github.com/brojonat/trc20watch/service/transfer"
)

const (
	// DefaultBaseURL is the public Tronscan API host.
	DefaultBaseURL = "https://apilist.tronscan.org"

	// DefaultTimeout bounds every single candidate attempt.
	DefaultTimeout = 15 * time.Second

	maxBodyBytes    = 10 << 20
	maxLoggedBody   = 300
	maxLoggedKeys   = 10
	statusTransport = 0
)

// HTTPDoer is the subset of *http.Client used by the provider client.
// This allows tests to substitute the transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Address    string
	Contract   string
	APIKey     string
	Timeout    time.Duration
	Candidates []Candidate // nil selects DefaultCandidates
	HTTPClient HTTPDoer
}

// Client fetches raw transfer records from Tronscan, trying an ordered list
// of candidates until one yields a non-empty record list.
type Client struct {
	http       HTTPDoer
	baseURL    string
	vars       Vars
	timeout    time.Duration
	candidates []Candidate
	idKeys     []string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a new Tronscan client.
// If metrics is nil, no metrics will be recorded.
func NewClient(opts Options, m *metrics.Metrics, logger *slog.Logger) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	vars := Vars{Address: opts.Address, Contract: opts.Contract, APIKey: opts.APIKey}
	candidates := opts.Candidates
	if candidates == nil {
		candidates = DefaultCandidates(opts.BaseURL, opts.Address, opts.Contract, opts.APIKey)
	}
	expanded := make([]Candidate, len(candidates))
	for i, c := range candidates {
		expanded[i] = c.Expand(vars)
	}

	return &Client{
		http:       opts.HTTPClient,
		baseURL:    opts.BaseURL,
		vars:       vars,
		timeout:    opts.Timeout,
		candidates: expanded,
		idKeys:     transfer.DefaultFields[transfer.FieldID],
		logger:     logger.With("component", "tronscan"),
		metrics:    m,
	}
}

// Candidates returns the expanded candidate list in try order.
func (c *Client) Candidates() []Candidate {
	return append([]Candidate(nil), c.candidates...)
}

// FetchCandidates tries each candidate in order and returns the first
// non-empty record list. It never fails: every per-candidate problem is logged
// and the next candidate is tried. When all candidates fail the result is empty.
func (c *Client) FetchCandidates(ctx context.Context) []transfer.Record {
	for _, cand := range c.candidates {
		if ctx.Err() != nil {
			c.logger.WarnContext(ctx, "fetch cancelled", "error", ctx.Err())
			return nil
		}

		recs, err := c.TryCandidate(ctx, cand)
		if err != nil {
			c.logger.WarnContext(ctx, "candidate failed, trying next",
				"candidate", cand.Name,
				"error", err,
			)
			continue
		}

		c.logger.InfoContext(ctx, "fetched transfer records",
			"candidate", cand.Name,
			"count", len(recs),
		)
		return recs
	}

	c.logger.WarnContext(ctx, "all tronscan candidates failed", "candidates", len(c.candidates))
	return nil
}

// TryCandidate issues one bounded GET for a candidate and locates its record
// list. A nil error always comes with a non-empty list.
func (c *Client) TryCandidate(ctx context.Context, cand Candidate) ([]transfer.Record, error) {
	body, status, err := c.getJSON(ctx, cand)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}

	var recs []transfer.Record
	if cand.RecordsQuery != "" {
		recs, err = queryRecords(body, cand.RecordsQuery)
	} else {
		recs, err = locateRecords(body, c.idKeys)
	}
	if err != nil {
		if obj, ok := body.(map[string]any); ok {
			c.logger.DebugContext(ctx, "response shape",
				"candidate", cand.Name,
				"keys", transfer.Record(obj).Keys(maxLoggedKeys),
			)
		}
		return nil, err
	}

	c.metrics.RecordTronscanRecords(cand.Name, len(recs))
	return recs, nil
}

// getJSON performs the request and decodes a 200 body. Non-200 responses are
// reported through the status with a nil body and nil error.
func (c *Client) getJSON(ctx context.Context, cand Candidate) (any, int, error) {
	name := cand.Name
	reqURL, err := cand.RequestURL()
	if err != nil {
		return nil, statusTransport, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, statusTransport, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range cand.Headers {
		req.Header.Set(k, v)
	}

	c.logger.DebugContext(ctx, "requesting tronscan",
		"candidate", name,
		"url", cand.URL,
		"params", cand.Params,
		"header_keys", len(cand.Headers),
	)

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		c.metrics.RecordTronscanRequest(name, statusTransport, duration)
		return nil, statusTransport, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.RecordTronscanRequest(name, resp.StatusCode, duration)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		attrs := []any{"candidate", name, "status", resp.StatusCode, "body", truncate(string(raw), maxLoggedBody)}
		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.WarnContext(ctx, "tronscan rate limited", attrs...)
		} else {
			c.logger.DebugContext(ctx, "tronscan returned non-200", attrs...)
		}
		return nil, resp.StatusCode, nil
	}

	body, err := decodeJSON(raw)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// ErrTransactionNotFound is returned by LookupTransaction when no endpoint
// knows the hash.
var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionResult is the raw body returned for a hash lookup.
type TransactionResult struct {
	Endpoint string
	Body     any
}

// LookupTransaction fetches a single transaction by hash, trying the
// transaction-info, transaction and transfer endpoints in order.
func (c *Client) LookupTransaction(ctx context.Context, hash string) (*TransactionResult, error) {
	if hash == "" {
		return nil, fmt.Errorf("hash is required")
	}

	var headers map[string]string
	if c.vars.APIKey != "" {
		headers = map[string]string{APIKeyHeader: c.vars.APIKey}
	}
	lookups := []Candidate{
		{Name: "transaction_info", URL: c.baseURL + "/api/transaction-info", Params: map[string]string{"hash": hash}, Headers: headers},
		{Name: "transaction", URL: c.baseURL + "/api/transaction/" + url.PathEscape(hash), Headers: headers},
		{Name: "transfer_by_hash", URL: c.baseURL + "/api/transfer", Params: map[string]string{"hash": hash}, Headers: headers},
	}

	for _, cand := range lookups {
		body, status, err := c.getJSON(ctx, cand)
		if err != nil || status != http.StatusOK {
			c.logger.DebugContext(ctx, "lookup attempt failed",
				"endpoint", cand.Name,
				"status", status,
				"error", err,
			)
			continue
		}
		if isEmptyBody(body) {
			continue
		}
		return &TransactionResult{Endpoint: cand.Name, Body: body}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, hash)
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed json: %w", err)
	}
	return body, nil
}

func isEmptyBody(body any) bool {
	switch v := body.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
