// Package registry resolves Iglu schema references to compiled validators.
//
// Resolution is layered: the hardcoded registry serves the schemas that ship
// with the binary, then each configured HTTP registry is tried in order. A
// manager memoises resolved entries for the lifetime of the process and
// remote lookups are TTL-cached, failures included.
package registry

import (
	"fmt"
	"strings"

	"github.com/datenstrom/datenstrom/internal/fault"
)

// Ref is a parsed Iglu schema reference such as
// iglu:com.acme/user/jsonschema/1-0-0.
type Ref struct {
	Vendor  string
	Name    string
	Format  string
	Version string
}

// ParseRef parses an iglu: reference. Only the jsonschema format is
// supported.
func ParseRef(schema string) (Ref, error) {
	path, ok := strings.CutPrefix(schema, "iglu:")
	if !ok {
		return Ref{}, fault.Errorf(fault.MalformedInput, "invalid schema (not iglu): %s", schema)
	}
	parts := strings.Split(path, "/")
	if len(parts) != 4 {
		return Ref{}, fault.Errorf(fault.MalformedInput, "invalid schema path: %s", path)
	}
	if parts[2] != "jsonschema" {
		return Ref{}, fault.Errorf(fault.MalformedInput, "invalid schema format: %s", parts[2])
	}
	return Ref{Vendor: parts[0], Name: parts[1], Format: parts[2], Version: parts[3]}, nil
}

// Path returns the registry-relative path of the reference.
func (r Ref) Path() string {
	return fmt.Sprintf("%s/%s/%s/%s", r.Vendor, r.Name, r.Format, r.Version)
}

// String returns the full iglu: form.
func (r Ref) String() string {
	return "iglu:" + r.Path()
}
