package registry

import (
	"github.com/datenstrom/datenstrom/internal/schema"
)

// Hardcoded serves the schemas compiled into the binary. Entries are built
// lazily; a shipped schema that fails to compile is a programming error and
// surfaces as InvalidSchema.
type Hardcoded struct {
	schemas map[string]string
	entries map[string]*Entry
}

// NewHardcoded builds the static registry. extra overrides or supplements
// the shipped schemas, keyed by registry path.
func NewHardcoded(extra map[string]string) *Hardcoded {
	schemas := make(map[string]string, len(schema.Static)+len(extra))
	for path, doc := range extra {
		schemas[path] = doc
	}
	for path, doc := range schema.Static {
		schemas[path] = doc
	}
	return &Hardcoded{schemas: schemas, entries: make(map[string]*Entry)}
}

// Get resolves ref against the shipped schemas. A nil entry with nil error
// means the registry does not carry the schema.
func (h *Hardcoded) Get(ref Ref) (*Entry, error) {
	path := ref.Path()
	if entry, ok := h.entries[path]; ok {
		return entry, nil
	}
	doc, ok := h.schemas[path]
	if !ok {
		return nil, nil
	}
	entry, err := compileEntry(ref, []byte(doc))
	if err != nil {
		return nil, err
	}
	h.entries[path] = entry
	return entry, nil
}
