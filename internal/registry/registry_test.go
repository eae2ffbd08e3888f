package registry

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
)

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("iglu:com.acme/user/jsonschema/1-0-0")
	require.NoError(t, err)
	assert.Equal(t, Ref{Vendor: "com.acme", Name: "user", Format: "jsonschema", Version: "1-0-0"}, ref)
	assert.Equal(t, "com.acme/user/jsonschema/1-0-0", ref.Path())
	assert.Equal(t, "iglu:com.acme/user/jsonschema/1-0-0", ref.String())

	for _, bad := range []string{
		"com.acme/user/jsonschema/1-0-0",
		"iglu:com.acme/user/jsonschema",
		"iglu:com.acme/user/avro/1-0-0",
	} {
		_, err := ParseRef(bad)
		require.Error(t, err, bad)
		assert.Equal(t, fault.MalformedInput, fault.KindOf(err))
	}
}

func testManager(t *testing.T, registries []string, clk clock.Clock) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Transport = "dev"
	if registries != nil {
		cfg.IgluSchemaRegistries = registries
	}
	return NewManager(cfg, clk)
}

func TestHardcodedSchemas(t *testing.T) {
	m := testManager(t, []string{"http://127.0.0.1:1/"}, clock.NewMock())

	require.NoError(t, m.Validate("iglu:io.datenstrom/page_view/jsonschema/1-0-0",
		map[string]any{"page_url": "http://example.com"}))

	err := m.Validate("iglu:io.datenstrom/page_view/jsonschema/1-0-0", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, fault.ValidationFailed, fault.KindOf(err))
	assert.Contains(t, err.Error(), "page_url")

	require.NoError(t, m.Validate(
		"iglu:com.snowplowanalytics.snowplow/payload_data/jsonschema/1-0-4",
		[]any{map[string]any{"tv": "py-0.13", "p": "pc", "e": "pv"}}))

	err = m.Validate("iglu:com.snowplowanalytics.snowplow/payload_data/jsonschema/1-0-4",
		[]any{map[string]any{"tv": "py-0.13"}})
	require.Error(t, err)
	assert.Equal(t, fault.ValidationFailed, fault.KindOf(err))
}

func TestFieldsKeepDeclarationOrder(t *testing.T) {
	m := testManager(t, []string{"http://127.0.0.1:1/"}, clock.NewMock())
	fields, err := m.Fields("iglu:io.datenstrom/page_ping/jsonschema/1-0-0")
	require.NoError(t, err)
	assert.Equal(t, []string{"pp_xoffset_min", "pp_xoffset_max", "pp_yoffset_min", "pp_yoffset_max"}, fields)
}

func TestRemoteRegistryLookupAndCache(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/com.snowplowanalytics.snowplow/link_click/jsonschema/1-0-1" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{
			"$schema": "https://json-schema.org/draft/2020-12/schema",
			"type": "object",
			"properties": {"targetUrl": {"type": "string"}},
			"required": ["targetUrl"]
		}`)
	}))
	defer srv.Close()

	clk := clock.NewMock()
	m := testManager(t, []string{srv.URL + "/"}, clk)

	schemaRef := "iglu:com.snowplowanalytics.snowplow/link_click/jsonschema/1-0-1"
	require.NoError(t, m.Validate(schemaRef, map[string]any{"targetUrl": "https://www.snowplow.io"}))
	require.NoError(t, m.Validate(schemaRef, map[string]any{"targetUrl": "https://www.snowplow.io"}))
	assert.EqualValues(t, 1, hits.Load(), "memoised schema was re-fetched")

	err := m.Validate(schemaRef, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targetUrl")
}

func TestSchemaNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	m := testManager(t, []string{srv.URL + "/"}, clock.NewMock())
	err := m.Validate("iglu:com.acme/missing/jsonschema/1-0-0", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, fault.SchemaNotFound, fault.KindOf(err))
}

func TestNegativeLookupIsCached(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	clk := clock.NewMock()
	remote := NewRemote(srv.URL+"/", 0, 0, clk)
	ref := Ref{Vendor: "com.acme", Name: "missing", Format: "jsonschema", Version: "1-0-0"}

	entry, err := remote.Get(ref)
	require.NoError(t, err)
	assert.Nil(t, entry)
	entry, err = remote.Get(ref)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.EqualValues(t, 1, hits.Load(), "negative lookup was not cached")

	clk.Add(remoteCacheNoneTTL + 1)
	_, _ = remote.Get(ref)
	assert.EqualValues(t, 2, hits.Load(), "negative entry did not expire")
}

func TestRejectsForeignMetaSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"$schema": "http://json-schema.org/draft-04/schema#", "type": "object"}`)
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL+"/", 0, 0, clock.NewMock())
	_, err := remote.Get(Ref{Vendor: "com.acme", Name: "old", Format: "jsonschema", Version: "1-0-0"})
	require.Error(t, err)
	assert.Equal(t, fault.InvalidSchema, fault.KindOf(err))
}

func TestConfiguredNegativeTTLDrivesExpiry(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	clk := clock.NewMock()
	remote := NewRemote(srv.URL+"/", 0, 5*time.Second, clk)
	ref := Ref{Vendor: "com.acme", Name: "missing", Format: "jsonschema", Version: "1-0-0"}

	_, _ = remote.Get(ref)
	clk.Add(2 * time.Second)
	_, _ = remote.Get(ref)
	assert.EqualValues(t, 1, hits.Load(), "negative entry expired before the configured TTL")

	clk.Add(4 * time.Second)
	_, _ = remote.Get(ref)
	assert.EqualValues(t, 2, hits.Load(), "negative entry outlived the configured TTL")
}

func TestRejectsOversizedSchema(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"type": "object", "description": "`))
		for i := 0; i < maxSchemaSize; i += 32 {
			w.Write([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
		}
		w.Write([]byte(`"}`))
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL+"/", 0, 0, clock.NewMock())
	ref := Ref{Vendor: "com.acme", Name: "huge", Format: "jsonschema", Version: "1-0-0"}
	_, err := remote.Get(ref)
	require.Error(t, err)
	assert.Equal(t, fault.InvalidSchema, fault.KindOf(err))

	// The rejection is replayed from the negative cache, reason intact.
	_, err = remote.Get(ref)
	require.Error(t, err)
	assert.Equal(t, fault.InvalidSchema, fault.KindOf(err))
	assert.EqualValues(t, 1, hits.Load(), "rejected schema was re-fetched")
}

func TestHardcodedWinsOverRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("remote registry consulted for a shipped schema: %s", r.URL.Path)
	}))
	defer srv.Close()

	m := testManager(t, []string{srv.URL + "/"}, clock.NewMock())
	require.NoError(t, m.Validate("iglu:io.datenstrom/page_view/jsonschema/1-0-0",
		map[string]any{"page_url": "http://example.com"}))
}
