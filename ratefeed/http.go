package ratefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSource pulls rates from a JSON quote endpoint of the common
// frankfurter/exchangerate-host shape:
//
//	GET {base}/latest?base=USD&symbols=EUR,GBP
//	GET {base}/2024-01-15?base=USD&symbols=EUR,GBP
//
//	{"base":"USD","date":"2024-01-15","rates":{"EUR":0.92,"GBP":0.79}}
//
// Upstream quotes are denom-per-ref; they are inverted to ref-per-denom
// on the way out. Decimal arithmetic is used for the inversion so a
// quote like 0.92 does not pick up binary noise before conversion.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTP returns a source backed by the given endpoint. A nil client
// uses a default with a 10s timeout.
func NewHTTP(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type quoteResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (s *HTTPSource) Current(ctx context.Context, ref string, denoms []string) (map[string]float64, error) {
	return s.fetch(ctx, "latest", ref, denoms)
}

func (s *HTTPSource) Historical(ctx context.Context, ref string, denoms []string, date time.Time) (map[string]float64, error) {
	return s.fetch(ctx, date.UTC().Format("2006-01-02"), ref, denoms)
}

func (s *HTTPSource) fetch(ctx context.Context, path, ref string, denoms []string) (map[string]float64, error) {
	symbols := make([]string, 0, len(denoms))
	for _, d := range denoms {
		if d != ref {
			symbols = append(symbols, d)
		}
	}

	q := url.Values{}
	q.Set("base", ref)
	if len(symbols) > 0 {
		q.Set("symbols", strings.Join(symbols, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("ratefeed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ratefeed: fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ratefeed: fetch rates: unexpected status %d", resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("ratefeed: decode rates: %w", err)
	}

	out := make(map[string]float64, len(denoms))
	one := decimal.NewFromInt(1)
	for _, d := range denoms {
		if d == ref {
			out[d] = 1
			continue
		}
		quote, ok := body.Rates[d]
		if !ok || !quote.IsPositive() {
			return nil, fmt.Errorf("%w: %s in %s", ErrRateUnavailable, d, ref)
		}
		inv, _ := one.Div(quote).Float64()
		out[d] = inv
	}
	return out, nil
}
