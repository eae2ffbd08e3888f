package enrich

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/datenstrom/datenstrom/internal/cache"
)

const (
	tenantCacheSize = 128
	tenantRetryTTL  = 60 * time.Second
)

// Tenant resolves the collector hostname to a tenant through the configured
// lookup endpoint. Resolved hostnames are kept for the process lifetime; the
// underlying HTTP lookups sit behind a short TTL cache so a flapping
// endpoint is retried at a bounded rate. Lookup failures are swallowed; the
// event simply carries no tenant.
type Tenant struct {
	endpoint string
	client   *cache.Client

	mu        sync.Mutex
	hostnames map[string]string
}

// NewTenant builds the tenant enrichment for the given endpoint. retryTTL
// bounds how often an unresolved hostname is looked up again; non-positive
// values fall back to the default.
func NewTenant(endpoint string, retryTTL time.Duration, clk clock.Clock) *Tenant {
	if retryTTL <= 0 {
		retryTTL = tenantRetryTTL
	}
	return &Tenant{
		endpoint:  endpoint,
		client:    cache.NewClient(tenantCacheSize, retryTTL, 0, clk),
		hostnames: make(map[string]string),
	}
}

func (*Tenant) Name() string { return "tenant" }

func (t *Tenant) Enrich(sp *Scratchpad) error {
	hostname := sp.Raw.Hostname
	if hostname == "" {
		return nil
	}
	tenant, ok := t.lookup(hostname)
	if !ok {
		return nil
	}
	return sp.SetValue("tenant", tenant)
}

func (t *Tenant) lookup(hostname string) (string, bool) {
	key := strings.ToLower(hostname)
	t.mu.Lock()
	tenant, ok := t.hostnames[key]
	t.mu.Unlock()
	if ok {
		return tenant, true
	}

	var response struct {
		Tenant string `json:"tenant"`
	}
	if !t.client.GetJSON(t.endpoint, map[string]string{"hostname": hostname}, &response) {
		return "", false
	}
	if response.Tenant == "" {
		return "", false
	}
	t.mu.Lock()
	t.hostnames[key] = response.Tenant
	t.mu.Unlock()
	return response.Tenant, true
}
