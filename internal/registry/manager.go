package registry

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
)

// memoSize bounds the process-lifetime entry memo of a Manager.
const memoSize = 100

type resolver interface {
	Get(ref Ref) (*Entry, error)
}

// Manager resolves schemas against the hardcoded registry first, then each
// configured remote registry in order. Resolved entries are memoised for the
// lifetime of the process.
type Manager struct {
	mu         sync.Mutex
	registries []resolver
	memo       *lru.Cache[string, *Entry]
}

// NewManager wires the registries from the configuration.
func NewManager(cfg *config.Config, clk clock.Clock) *Manager {
	registries := []resolver{NewHardcoded(nil)}
	seen := map[string]bool{}
	for _, url := range cfg.IgluSchemaRegistries {
		if seen[url] {
			continue
		}
		seen[url] = true
		slog.Info("adding iglu schema registry", "url", url)
		registries = append(registries, NewRemote(url, cfg.CacheTTL(), cfg.CacheNoneTTL(), clk))
	}
	memo, err := lru.New[string, *Entry](memoSize)
	if err != nil {
		panic(err)
	}
	return &Manager{registries: registries, memo: memo}
}

// Resolve returns the entry for an iglu reference, trying each registry in
// order.
func (m *Manager) Resolve(schemaRef string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.memo.Get(schemaRef); ok {
		return entry, nil
	}
	ref, err := ParseRef(schemaRef)
	if err != nil {
		return nil, err
	}
	for _, registry := range m.registries {
		entry, err := registry.Get(ref)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			m.memo.Add(schemaRef, entry)
			return entry, nil
		}
	}
	return nil, fault.Errorf(fault.SchemaNotFound, "schema not found in any registry: %s", schemaRef)
}

// Validate checks data against the referenced schema. Data is normalised
// through a JSON round trip first so typed values and decoded values
// validate identically.
func (m *Manager) Validate(schemaRef string, data any) error {
	entry, err := m.Resolve(schemaRef)
	if err != nil {
		return err
	}
	normalised, err := normalise(data)
	if err != nil {
		return fault.Wrap(fault.MalformedInput, err, "unserializable data")
	}
	return entry.Validate(normalised)
}

// IsValid reports whether data passes the referenced schema.
func (m *Manager) IsValid(schemaRef string, data any) bool {
	entry, err := m.Resolve(schemaRef)
	if err != nil {
		return false
	}
	normalised, err := normalise(data)
	if err != nil {
		return false
	}
	return entry.IsValid(normalised)
}

// Fields returns the top-level property names of the referenced schema.
func (m *Manager) Fields(schemaRef string) ([]string, error) {
	entry, err := m.Resolve(schemaRef)
	if err != nil {
		return nil, err
	}
	return entry.Fields(), nil
}

// Parts parses the reference without resolving it.
func (m *Manager) Parts(schemaRef string) (Ref, error) {
	return ParseRef(schemaRef)
}

func normalise(data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
