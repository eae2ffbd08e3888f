package registry

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/datenstrom/datenstrom/internal/fault"
)

const draft2020URL = "https://json-schema.org/draft/2020-12/schema"

// Entry is a resolved schema: the reference, the compiled validator and the
// declared property names in document order.
type Entry struct {
	Ref       Ref
	validator *jsonschema.Schema
	fields    []string
}

// Fields returns the top-level property names in the order the schema
// declares them.
func (e *Entry) Fields() []string { return e.fields }

// Validate checks data against the schema. A failure lists the offending
// instance paths in its reason.
func (e *Entry) Validate(data any) error {
	if err := e.validator.Validate(data); err != nil {
		var ve *jsonschema.ValidationError
		if vErr, ok := err.(*jsonschema.ValidationError); ok {
			ve = vErr
		}
		if ve == nil {
			return fault.Wrap(fault.ValidationFailed, err, e.Ref.String())
		}
		return fault.Errorf(fault.ValidationFailed, "failed to validate %s: %s",
			e.Ref.String(), strings.Join(leafMessages(ve), "; "))
	}
	return nil
}

// IsValid reports whether data passes the schema.
func (e *Entry) IsValid(data any) bool {
	return e.validator.Validate(data) == nil
}

func leafMessages(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, leafMessages(cause)...)
	}
	return out
}

// compileEntry builds an Entry from raw schema bytes. The self-describing
// Iglu meta-schema (and a missing $schema) is treated as Draft 2020-12; any
// other meta-schema is rejected.
func compileEntry(ref Ref, raw []byte) (*Entry, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fault.Wrap(fault.InvalidSchema, err, ref.String())
	}
	if meta, ok := doc["$schema"].(string); ok {
		if strings.HasPrefix(meta, "http://json-schema.org/") ||
			(strings.HasPrefix(meta, "https://json-schema.org/") && !strings.HasPrefix(meta, draft2020URL)) {
			return nil, fault.Errorf(fault.InvalidSchema, "%s: unsupported meta-schema %s", ref.String(), meta)
		}
		// Self-describing meta URLs do not resolve; compile as 2020-12.
		delete(doc, "$schema")
		raw, _ = json.Marshal(doc)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	resource := "mem://" + ref.Path()
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, fault.Wrap(fault.InvalidSchema, err, ref.String())
	}
	validator, err := compiler.Compile(resource)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidSchema, err, ref.String())
	}
	return &Entry{Ref: ref, validator: validator, fields: propertyOrder(raw)}, nil
}

// propertyOrder walks the raw JSON token stream and records the keys of the
// top-level "properties" object in declaration order. A decoded map would
// lose the order.
func propertyOrder(raw []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := keyTok.(string)
		if key != "properties" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
			continue
		}
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			continue
		}
		var fields []string
		for dec.More() {
			nameTok, err := dec.Token()
			if err != nil {
				return fields
			}
			if name, ok := nameTok.(string); ok {
				fields = append(fields, name)
			}
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fields
			}
		}
		return fields
	}
	return nil
}
