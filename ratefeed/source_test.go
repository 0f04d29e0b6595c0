package ratefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStaticSource(t *testing.T) {
	src := NewStatic(map[string]map[string]float64{
		"USD": {"EUR": 1.08, "GBP": 1.26},
	})

	rates, err := src.Current(context.Background(), "USD", []string{"USD", "EUR", "GBP"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rates["USD"] != 1 {
		t.Errorf("reference rate: got %v, want 1", rates["USD"])
	}
	if rates["EUR"] != 1.08 {
		t.Errorf("EUR: got %v, want 1.08", rates["EUR"])
	}

	_, err = src.Current(context.Background(), "USD", []string{"JPY"})
	if !errors.Is(err, ErrRateUnavailable) {
		t.Errorf("missing denom: got %v, want ErrRateUnavailable", err)
	}

	_, err = src.Current(context.Background(), "CHF", []string{"EUR"})
	if !errors.Is(err, ErrRateUnavailable) {
		t.Errorf("missing reference: got %v, want ErrRateUnavailable", err)
	}
}

func TestHTTPSource(t *testing.T) {
	var gotPath, gotBase, gotSymbols string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBase = r.URL.Query().Get("base")
		gotSymbols = r.URL.Query().Get("symbols")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base":"USD","date":"2024-01-15","rates":{"EUR":0.8,"GBP":0.5}}`))
	}))
	defer srv.Close()

	src := NewHTTP(srv.URL, nil)

	rates, err := src.Current(context.Background(), "USD", []string{"USD", "EUR", "GBP"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/latest" || gotBase != "USD" {
		t.Errorf("request: path=%s base=%s", gotPath, gotBase)
	}
	if gotSymbols != "EUR,GBP" {
		t.Errorf("symbols: got %s, want EUR,GBP", gotSymbols)
	}

	// Upstream quotes denom-per-ref; the source inverts.
	if rates["EUR"] != 1.25 {
		t.Errorf("EUR: got %v, want 1.25", rates["EUR"])
	}
	if rates["GBP"] != 2 {
		t.Errorf("GBP: got %v, want 2", rates["GBP"])
	}
	if rates["USD"] != 1 {
		t.Errorf("USD: got %v, want 1", rates["USD"])
	}
}

func TestHTTPSourceHistorical(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"base":"USD","date":"2024-01-15","rates":{"EUR":0.8}}`))
	}))
	defer srv.Close()

	src := NewHTTP(srv.URL, nil)
	date := time.Date(2024, 1, 15, 13, 45, 0, 0, time.UTC)

	if _, err := src.Historical(context.Background(), "USD", []string{"EUR"}, date); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/2024-01-15" {
		t.Errorf("path: got %s, want /2024-01-15", gotPath)
	}
}

func TestHTTPSourceErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		if _, err := NewHTTP(srv.URL, nil).Current(context.Background(), "USD", []string{"EUR"}); err == nil {
			t.Error("expected error on 502")
		}
	})

	t.Run("missing quote", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"base":"USD","rates":{}}`))
		}))
		defer srv.Close()

		_, err := NewHTTP(srv.URL, nil).Current(context.Background(), "USD", []string{"EUR"})
		if !errors.Is(err, ErrRateUnavailable) {
			t.Errorf("got %v, want ErrRateUnavailable", err)
		}
	})
}
