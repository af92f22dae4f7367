package fx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPProviderGetRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/EUR", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"base":"EUR","date":"2024-05-01","rates":{"USD":1.1,"GBP":0.85}}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, time.Second)
	rate, err := provider.GetRate(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	require.Equal(t, 1.1, rate)
}

func TestHTTPProviderMissingRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"base":"EUR","rates":{"GBP":0.85}}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, time.Second)
	_, err := provider.GetRate(context.Background(), "EUR", "JPY")
	require.ErrorIs(t, err, ErrConversion)
}

func TestHTTPProviderUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, time.Second)
	_, err := provider.GetRate(context.Background(), "EUR", "USD")
	require.ErrorIs(t, err, ErrConversion)
}

func TestHTTPProviderRejectsNonPositiveRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"base":"EUR","rates":{"USD":0}}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL, time.Second)
	_, err := provider.GetRate(context.Background(), "EUR", "USD")
	require.ErrorIs(t, err, ErrConversion)
}
