// Package ratefeed supplies exchange rates for the daily valuation.
// Rates are quoted as units of a reference denomination per one unit of
// the quoted denomination.
package ratefeed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRateUnavailable is returned when a source cannot quote one of the
// requested denominations.
var ErrRateUnavailable = errors.New("ratefeed: rate unavailable")

// Source supplies reference-denominated rates. Implementations must be
// safe for concurrent use. Failures from remote sources are retryable.
type Source interface {
	// Current returns ref-per-unit rates for each requested denom.
	Current(ctx context.Context, ref string, denoms []string) (map[string]float64, error)

	// Historical returns the same quotes as of a past date.
	Historical(ctx context.Context, ref string, denoms []string, date time.Time) (map[string]float64, error)
}

// StaticSource serves a fixed rate table. Useful for tests and for
// deployments that feed rates out of band. The table maps ref -> denom
// -> rate.
type StaticSource struct {
	rates map[string]map[string]float64
}

// NewStatic returns a source serving the given table.
func NewStatic(rates map[string]map[string]float64) *StaticSource {
	return &StaticSource{rates: rates}
}

func (s *StaticSource) Current(_ context.Context, ref string, denoms []string) (map[string]float64, error) {
	table, ok := s.rates[ref]
	if !ok {
		return nil, fmt.Errorf("%w: no table for reference %s", ErrRateUnavailable, ref)
	}

	out := make(map[string]float64, len(denoms))
	for _, d := range denoms {
		if d == ref {
			out[d] = 1
			continue
		}
		r, ok := table[d]
		if !ok || r <= 0 {
			return nil, fmt.Errorf("%w: %s in %s", ErrRateUnavailable, d, ref)
		}
		out[d] = r
	}
	return out, nil
}

func (s *StaticSource) Historical(ctx context.Context, ref string, denoms []string, _ time.Time) (map[string]float64, error) {
	return s.Current(ctx, ref, denoms)
}
