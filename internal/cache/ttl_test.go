package cache

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLHitServedForFullTTL(t *testing.T) {
	clk := clock.NewMock()
	c := NewTTL[string, int](16, time.Hour, time.Minute, clk)

	c.Set("a", 1)
	v, negative, ok := c.Get("a")
	require.True(t, ok)
	assert.False(t, negative)
	assert.Equal(t, 1, v)

	clk.Add(time.Hour - time.Second)
	_, _, ok = c.Get("a")
	assert.True(t, ok, "entry expired before its TTL")

	clk.Add(2 * time.Second)
	_, _, ok = c.Get("a")
	assert.False(t, ok, "entry survived its TTL")
}

func TestTTLNegativeExpiresEarlier(t *testing.T) {
	clk := clock.NewMock()
	c := NewTTL[string, int](16, time.Hour, time.Minute, clk)

	c.SetNegative("missing")
	_, negative, ok := c.Get("missing")
	require.True(t, ok)
	assert.True(t, negative)

	clk.Add(time.Minute + time.Second)
	_, _, ok = c.Get("missing")
	assert.False(t, ok, "negative entry survived the none TTL")
}

func TestTTLEvictsLeastRecentlyUsed(t *testing.T) {
	clk := clock.NewMock()
	c := NewTTL[int, int](2, time.Hour, 0, clk)

	c.Set(1, 1)
	c.Set(2, 2)
	c.Get(1)
	c.Set(3, 3)

	_, _, ok := c.Get(2)
	assert.False(t, ok, "least recently used entry survived eviction")
	_, _, ok = c.Get(1)
	assert.True(t, ok)
	_, _, ok = c.Get(3)
	assert.True(t, ok)
}

func TestClientCachesSuccessAndFailure(t *testing.T) {
	var hits atomic.Int64
	var status atomic.Int64
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"tenant":"acme"}`))
	}))
	defer srv.Close()

	clk := clock.NewMock()
	c := NewClient(16, time.Hour, time.Minute, clk)

	var out struct {
		Tenant string `json:"tenant"`
	}
	require.True(t, c.GetJSON(srv.URL, map[string]string{"hostname": "acme.example"}, &out))
	assert.Equal(t, "acme", out.Tenant)
	require.True(t, c.GetJSON(srv.URL, map[string]string{"hostname": "acme.example"}, &out))
	assert.EqualValues(t, 1, hits.Load(), "second lookup hit the server")

	status.Store(http.StatusInternalServerError)
	_, ok := c.Get(srv.URL, map[string]string{"hostname": "other.example"})
	assert.False(t, ok)
	before := hits.Load()
	_, ok = c.Get(srv.URL, map[string]string{"hostname": "other.example"})
	assert.False(t, ok)
	assert.Equal(t, before, hits.Load(), "cached failure hit the server again")

	// After the negative TTL the failure is retried.
	clk.Add(2 * time.Minute)
	status.Store(http.StatusOK)
	_, ok = c.Get(srv.URL, map[string]string{"hostname": "other.example"})
	assert.True(t, ok)
}

func TestClientDistinguishesParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Query().Get("hostname")))
	}))
	defer srv.Close()

	c := NewClient(16, time.Hour, time.Minute, clock.NewMock())
	a, ok := c.Get(srv.URL, map[string]string{"hostname": "a"})
	require.True(t, ok)
	b, ok := c.Get(srv.URL, map[string]string{"hostname": "b"})
	require.True(t, ok)
	assert.Equal(t, "a", string(a))
	assert.Equal(t, "b", string(b))
}
