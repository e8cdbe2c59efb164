package tronscan

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// APIKeyHeader is the header Tronscan reads the API key from.
const APIKeyHeader = "TRON-PRO-API-KEY"

// DefaultLimit is the page size requested from list endpoints.
const DefaultLimit = "50"

// Candidate is one (endpoint, parameters, headers) combination to try.
// URL, parameter values and header values may contain the placeholders
// {address}, {contract} and {api_key}.
type Candidate struct {
	Name    string            `yaml:"name" json:"name"`
	URL     string            `yaml:"url" json:"url"`
	Params  map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// RecordsQuery is an optional jq expression selecting the record list
	// from the response body. When empty the list is located heuristically.
	RecordsQuery string `yaml:"records_query,omitempty" json:"records_query,omitempty"`
}

// Vars are the values substituted into candidate placeholders.
type Vars struct {
	Address  string
	Contract string
	APIKey   string
}

func (v Vars) replacer() *strings.Replacer {
	return strings.NewReplacer(
		"{address}", v.Address,
		"{contract}", v.Contract,
		"{api_key}", v.APIKey,
	)
}

// Expand returns a copy of the candidate with placeholders substituted.
func (c Candidate) Expand(v Vars) Candidate {
	r := v.replacer()
	out := Candidate{
		Name:         c.Name,
		URL:          r.Replace(c.URL),
		RecordsQuery: c.RecordsQuery,
	}
	if len(c.Params) > 0 {
		out.Params = make(map[string]string, len(c.Params))
		for k, val := range c.Params {
			out.Params[k] = r.Replace(val)
		}
	}
	if len(c.Headers) > 0 {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, val := range c.Headers {
			out.Headers[k] = r.Replace(val)
		}
	}
	return out
}

// RequestURL returns the full URL including the encoded query string.
func (c Candidate) RequestURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid candidate url %q: %w", c.URL, err)
	}
	if len(c.Params) > 0 {
		q := u.Query()
		for k, v := range c.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type endpoint struct {
	name         string
	path         string
	params       map[string]string
	recordsQuery string
}

type headerVariant struct {
	name    string
	headers map[string]string
	needKey bool
}

// DefaultCandidates returns the built-in candidate list for a watched address.
// Header variants form the outer loop: every endpoint, most specific first, is
// tried with the API key header, then every endpoint with the key plus a JSON
// content type, then every endpoint with no headers. The key variants are left
// out when apiKey is empty.
func DefaultCandidates(baseURL, address, contract, apiKey string) []Candidate {
	baseURL = strings.TrimRight(baseURL, "/")

	endpoints := []endpoint{
		{
			name: "trc20_transfers_to",
			path: "/api/token_trc20/transfers",
			params: map[string]string{
				"toAddress":        "{address}",
				"contract_address": "{contract}",
				"start":            "0",
				"limit":            DefaultLimit,
			},
			recordsQuery: ".token_transfers",
		},
		{
			name:   "transfer_paged",
			path:   "/api/transfer",
			params: map[string]string{"address": "{address}", "start": "0", "limit": DefaultLimit},
		},
		{
			name:   "account_trc20",
			path:   "/api/account/{address}/transactions/trc20",
			params: map[string]string{"start": "0", "limit": DefaultLimit},
		},
		{
			name:   "transfer",
			path:   "/api/transfer",
			params: map[string]string{"address": "{address}", "limit": DefaultLimit},
		},
	}

	variants := []headerVariant{
		{name: "api_key", headers: map[string]string{APIKeyHeader: "{api_key}"}, needKey: true},
		{name: "api_key_json", headers: map[string]string{APIKeyHeader: "{api_key}", "Content-Type": "application/json"}, needKey: true},
		{name: "no_headers"},
	}

	vars := Vars{Address: address, Contract: contract, APIKey: apiKey}
	var out []Candidate
	for _, hv := range variants {
		if hv.needKey && apiKey == "" {
			continue
		}
		for _, ep := range endpoints {
			c := Candidate{
				Name:         ep.name + "/" + hv.name,
				URL:          baseURL + ep.path,
				Params:       ep.params,
				Headers:      hv.headers,
				RecordsQuery: ep.recordsQuery,
			}
			out = append(out, c.Expand(vars))
		}
	}
	return out
}

// candidateFile is the on-disk layout of a candidate list.
type candidateFile struct {
	Candidates []Candidate `yaml:"candidates"`
}

// LoadCandidatesFile reads an ordered candidate list from a YAML file.
// Relative candidate URLs are resolved against baseURL.
func LoadCandidatesFile(path, baseURL string) ([]Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates file: %w", err)
	}
	return ParseCandidates(data, baseURL)
}

// ParseCandidates decodes a YAML candidate list.
func ParseCandidates(data []byte, baseURL string) ([]Candidate, error) {
	var f candidateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse candidates: %w", err)
	}
	if len(f.Candidates) == 0 {
		return nil, fmt.Errorf("candidates file lists no candidates")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	for i := range f.Candidates {
		c := &f.Candidates[i]
		if c.URL == "" {
			return nil, fmt.Errorf("candidate %d has no url", i)
		}
		if strings.HasPrefix(c.URL, "/") {
			c.URL = baseURL + c.URL
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("candidate_%d", i)
		}
	}
	return f.Candidates, nil
}

// MarshalCandidates renders a candidate list in the file format read by
// LoadCandidatesFile.
func MarshalCandidates(cs []Candidate) ([]byte, error) {
	return yaml.Marshal(candidateFile{Candidates: cs})
}
