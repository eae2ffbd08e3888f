package registry

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/datenstrom/datenstrom/internal/cache"
	"github.com/datenstrom/datenstrom/internal/fault"
)

const (
	remoteCacheSize    = 1024
	remoteCacheTTL     = 3600 * time.Second
	remoteCacheNoneTTL = 60 * time.Second
	remoteTimeout      = 5 * time.Second

	// maxSchemaSize rejects registry responses that cannot plausibly be a
	// schema document.
	maxSchemaSize = 128 * 1024
)

// cachedSchema is a cache slot: a compiled entry on a hit, or the rejection
// error when the registry served an unusable document. A negative slot with
// a nil err is a plain miss.
type cachedSchema struct {
	entry *Entry
	err   error
}

// Remote resolves schemas from an Iglu-layout HTTP registry
// ({base}/{vendor}/{name}/jsonschema/{version}). Responses are TTL-cached;
// misses, transport failures and rejected documents are cached under the
// shorter negative TTL, rejections together with their error so repeated
// lookups keep reporting the same reason.
type Remote struct {
	baseURL string
	http    *http.Client
	cache   *cache.TTL[string, cachedSchema]
}

// NewRemote builds a registry client for baseURL. The TTLs drive cache
// expiry; non-positive values fall back to the defaults, a nil clock uses
// wall time.
func NewRemote(baseURL string, ttl, noneTTL time.Duration, clk clock.Clock) *Remote {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if ttl <= 0 {
		ttl = remoteCacheTTL
	}
	if noneTTL <= 0 {
		noneTTL = remoteCacheNoneTTL
	}
	return &Remote{
		baseURL: baseURL,
		http:    &http.Client{Timeout: remoteTimeout},
		cache:   cache.NewTTL[string, cachedSchema](remoteCacheSize, ttl, noneTTL, clk),
	}
}

// Get resolves ref. A nil entry with nil error means the registry does not
// carry the schema (cached for the negative TTL).
func (r *Remote) Get(ref Ref) (*Entry, error) {
	key := ref.String()
	if slot, negative, ok := r.cache.Get(key); ok {
		if negative {
			return nil, slot.err
		}
		return slot.entry, nil
	}

	raw, err := r.fetch(ref)
	if err != nil {
		slog.Warn("schema fetch failed", "schema", key, "registry", r.baseURL, "error", err)
		if fault.KindOf(err) == fault.InvalidSchema {
			r.cache.SetNegativeValue(key, cachedSchema{err: err})
			return nil, err
		}
		r.cache.SetNegative(key)
		return nil, nil
	}
	entry, err := compileEntry(ref, raw)
	if err != nil {
		r.cache.SetNegativeValue(key, cachedSchema{err: err})
		return nil, err
	}
	r.cache.Set(key, cachedSchema{entry: entry})
	return entry, nil
}

func (r *Remote) fetch(ref Ref) ([]byte, error) {
	url := r.baseURL + ref.Path()
	resp, err := r.http.Get(url)
	if err != nil {
		return nil, fault.Wrap(fault.Transient, err, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fault.Errorf(fault.SchemaNotFound, "%s returned %d", url, resp.StatusCode)
	}
	if resp.ContentLength > maxSchemaSize {
		return nil, fault.Errorf(fault.InvalidSchema, "schema %s too large: %d bytes", ref.String(), resp.ContentLength)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSchemaSize+1))
	if err != nil {
		return nil, fault.Wrap(fault.Transient, err, url)
	}
	if len(raw) > maxSchemaSize {
		return nil, fault.Errorf(fault.InvalidSchema, "schema %s too large", ref.String())
	}
	if !json.Valid(raw) {
		return nil, fault.Errorf(fault.InvalidSchema, "schema %s is not valid json", ref.String())
	}
	return raw, nil
}
