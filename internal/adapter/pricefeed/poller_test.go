package pricefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exchange-ledger/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC,ETH", r.URL.Query().Get("assets"))
		json.NewEncoder(w).Encode([]Message{
			{Asset: "BTC", Price: "50000", Timestamp: 1700000000000},
			{Asset: "ETH", Price: "3300", Timestamp: 1700000000500},
		})
	}))
	defer srv.Close()

	p := NewPoller(srv.URL, time.Second)
	samples, err := p.Fetch(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, "BTC", samples[0].Asset)
	assert.True(t, samples[0].Price.Equal(mustDecimal(t, "50000")))
	assert.Equal(t, domain.PriceSourcePoll, samples[0].Source)
	assert.Equal(t, time.UnixMilli(1700000000500).UTC(), samples[1].Timestamp.UTC())
}

func TestPoller_Fetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPoller(srv.URL, time.Second)
	_, err := p.Fetch(context.Background(), []string{"BTC"})
	assert.Error(t, err)
}

func TestPoller_Fetch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := NewPoller(srv.URL, time.Second)
	_, err := p.Fetch(context.Background(), []string{"BTC"})
	assert.Error(t, err)
}

func TestMessage_Sample_BadPrice(t *testing.T) {
	m := Message{Asset: "BTC", Price: "fifty grand", Timestamp: 1700000000000}
	_, err := m.Sample(domain.PriceSourceStream)
	assert.Error(t, err)
}
