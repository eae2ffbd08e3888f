package enrich

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/registry"
	"github.com/datenstrom/datenstrom/internal/schema"
)

// selfDescribing is the {schema, data} wrapper used for unstructured events
// and contexts.
type selfDescribing struct {
	Schema string          `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

func (s selfDescribing) check() error {
	if s.Schema == "" {
		return fault.New(fault.MalformedInput, "missing schema in self describing payload")
	}
	if s.Data == nil {
		return fault.New(fault.MalformedInput, "missing data in self describing payload")
	}
	return nil
}

// decodeBase64JSON decodes an unpadded base64 tracker field. Trackers use
// either the standard or the URL-safe alphabet.
func decodeBase64JSON(data string, out any) error {
	if pad := len(data) % 4; pad != 0 {
		data += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(data)
	}
	if err != nil {
		return fault.Wrap(fault.MalformedInput, err, "invalid base64 tracker field")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fault.Wrap(fault.MalformedInput, err, "invalid json in tracker field")
	}
	return nil
}

// EventExtraction resolves the event schema, builds the self-describing
// event body and validates it.
type EventExtraction struct {
	Registry *registry.Manager
}

func (EventExtraction) Name() string { return "event_extraction" }

func (e EventExtraction) Enrich(sp *Scratchpad) error {
	if !sp.Has("schema") {
		if err := e.extractUnstructured(sp); err != nil {
			return err
		}
	}

	schemaRef := sp.GetString("schema")
	parts, err := e.Registry.Parts(schemaRef)
	if err != nil {
		return err
	}
	if err := sp.SetValue("event_vendor", parts.Vendor); err != nil {
		return err
	}
	if err := sp.SetValue("event_name", parts.Name); err != nil {
		return err
	}
	if err := sp.SetValue("event_format", parts.Format); err != nil {
		return err
	}
	if err := sp.SetValue("event_version", parts.Version); err != nil {
		return err
	}

	var table map[string]transformation
	switch parts.Name {
	case "page_view":
		table = pageViewTransformations
	case "page_ping":
		table = pagePingTransformations
	case "structured_event":
		table = structuredEventTransformations
	case "transaction":
		table = transactionTransformations
	case "transaction_item":
		table = transactionItemTransformations
	}
	if table != nil {
		if err := runTempTransformations(sp, table); err != nil {
			return err
		}
	}

	if !sp.HasEvent() {
		if err := e.buildEvent(sp, schemaRef); err != nil {
			return err
		}
	}

	return flattenStructured(sp)
}

// extractUnstructured unwraps the ue_px/ue_pr wrapper down to the inner
// event and validates it.
func (e EventExtraction) extractUnstructured(sp *Scratchpad) error {
	var outer selfDescribing
	switch {
	case sp.Has("ue_px"):
		if err := decodeBase64JSON(sp.GetString("ue_px"), &outer); err != nil {
			return err
		}
	case sp.Has("ue_pr"):
		if err := json.Unmarshal([]byte(sp.GetString("ue_pr")), &outer); err != nil {
			return fault.Wrap(fault.MalformedInput, err, "invalid ue_pr json")
		}
	default:
		return fault.New(fault.MalformedInput, "no schema and no self describing event")
	}
	if err := outer.check(); err != nil {
		return err
	}

	var inner selfDescribing
	if err := json.Unmarshal(outer.Data, &inner); err != nil {
		return fault.Wrap(fault.MalformedInput, err, "invalid inner self describing event")
	}
	if err := inner.check(); err != nil {
		return err
	}

	var data map[string]any
	if err := json.Unmarshal(inner.Data, &data); err != nil {
		return fault.Wrap(fault.MalformedInput, err, "invalid inner event data")
	}
	if err := e.Registry.Validate(inner.Schema, data); err != nil {
		return err
	}
	sp.Temp["schema"] = inner.Schema
	return sp.SetEvent(schema.SelfDescribingEvent{Schema: inner.Schema, Data: data})
}

// buildEvent assembles the event body, either from an explicit body carried
// under the "event" key or by filtering the temp data down to the schema's
// declared fields.
func (e EventExtraction) buildEvent(sp *Scratchpad, schemaRef string) error {
	if sp.Has("event") {
		data, ok := sp.Get("event").(map[string]any)
		if !ok {
			return fault.New(fault.MalformedInput, "event body is not an object")
		}
		if err := e.Registry.Validate(schemaRef, data); err != nil {
			return err
		}
		return sp.SetEvent(schema.SelfDescribingEvent{Schema: schemaRef, Data: data})
	}

	fields, err := e.Registry.Fields(schemaRef)
	if err != nil {
		return err
	}
	data := make(map[string]any)
	for _, field := range fields {
		if v, ok := sp.Temp[field]; ok {
			data[field] = v
		}
	}
	if err := e.Registry.Validate(schemaRef, data); err != nil {
		return err
	}
	return sp.SetEvent(schema.SelfDescribingEvent{Schema: schemaRef, Data: data})
}

// flattenStructured copies the structured-event fields out of the event body
// into the atomic columns.
func flattenStructured(sp *Scratchpad) error {
	ev := sp.Event()
	if ev == nil {
		return nil
	}
	for _, field := range []string{"category", "action", "label", "property", "value"} {
		v, ok := ev.Data[field]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if err := sp.SetValue(field, s); err != nil {
			return err
		}
	}
	return nil
}

// ContextExtraction decodes the co/cx tracker fields, validates each context
// and attaches them to the event.
type ContextExtraction struct {
	Registry *registry.Manager
}

func (ContextExtraction) Name() string { return "context_extraction" }

func (c ContextExtraction) Enrich(sp *Scratchpad) error {
	var wrapper selfDescribing
	switch {
	case sp.Has("cx"):
		if err := decodeBase64JSON(sp.GetString("cx"), &wrapper); err != nil {
			return err
		}
	case sp.Has("co"):
		if err := json.Unmarshal([]byte(sp.GetString("co")), &wrapper); err != nil {
			return fault.Wrap(fault.MalformedInput, err, "invalid co json")
		}
	default:
		return nil
	}
	if err := wrapper.check(); err != nil {
		return err
	}

	var contexts []selfDescribing
	if err := json.Unmarshal(wrapper.Data, &contexts); err != nil {
		return fault.Wrap(fault.MalformedInput, err, "contexts data is not a list")
	}
	for _, ctx := range contexts {
		if err := ctx.check(); err != nil {
			return err
		}
		var data map[string]any
		if err := json.Unmarshal(ctx.Data, &data); err != nil {
			return fault.Wrap(fault.MalformedInput, err, "invalid context data")
		}
		if err := c.Registry.Validate(ctx.Schema, data); err != nil {
			return err
		}
		if err := sp.AddContext(schema.SelfDescribingContext{Schema: ctx.Schema, Data: data}); err != nil {
			return err
		}

		parts, err := c.Registry.Parts(ctx.Schema)
		if err != nil {
			return err
		}
		if parts.Name == "client_session" {
			if sessionID, ok := data["sessionId"].(string); ok {
				if err := sp.SetValue("session_id", sessionID); err != nil {
					return err
				}
			}
			if sessionIdx, ok := data["sessionIndex"]; ok && sessionIdx != nil {
				if err := sp.SetValue("session_idx", sessionIdx); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
