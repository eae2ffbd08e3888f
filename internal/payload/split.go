package payload

import (
	"encoding/json"
	"log/slog"

	"github.com/datenstrom/datenstrom/internal/fault"
)

type multiEventBody struct {
	Schema string            `json:"schema"`
	Data   []json.RawMessage `json:"data"`
}

// SplitAndSerialize encodes p in the given format, splitting a multi-event
// body over several frames when a single frame would exceed maxSize bytes.
// Splitting regroups the body's data items greedily; the concatenation of the
// data arrays across the returned frames equals the original array.
func SplitAndSerialize(p *CollectorPayload, format string, maxSize int) ([][]byte, error) {
	full, err := Serialize(p, format)
	if err != nil {
		return nil, err
	}
	if len(full) <= maxSize {
		return [][]byte{full}, nil
	}

	body := p.Body
	p.Body = nil
	envelope, err := Serialize(p, format)
	p.Body = body
	if err != nil {
		return nil, err
	}
	envelopeSize := len(envelope)
	if envelopeSize >= maxSize {
		return nil, fault.Errorf(fault.OversizedEnvelope,
			"envelope without body too large: %d >= %d", envelopeSize, maxSize)
	}
	if len(body) == 0 {
		return [][]byte{envelope}, nil
	}

	var parsed multiEventBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fault.Wrap(fault.MalformedInput, err, "unparsable body")
	}
	if parsed.Schema == "" {
		return nil, fault.New(fault.MalformedInput, "missing schema in body")
	}
	if parsed.Data == nil {
		return nil, fault.New(fault.MalformedInput, "missing data in body")
	}
	if len(parsed.Data) == 0 {
		return [][]byte{envelope}, nil
	}

	slog.Info("splitting oversized payload", "items", len(parsed.Data))

	serialize := func(data []json.RawMessage) ([]byte, error) {
		encoded, err := json.Marshal(multiEventBody{Schema: parsed.Schema, Data: data})
		if err != nil {
			return nil, err
		}
		p.Body = encoded
		frame, err := Serialize(p, format)
		p.Body = body
		return frame, err
	}

	var frames [][]byte
	var current []json.RawMessage
	for _, item := range parsed.Data {
		candidate, err := json.Marshal(multiEventBody{Schema: parsed.Schema, Data: append(current, item)})
		if err != nil {
			return nil, fault.Wrap(fault.MalformedInput, err, "unserializable body item")
		}
		if len(candidate)+envelopeSize > maxSize {
			if len(current) == 0 {
				return nil, fault.Errorf(fault.OversizedItem,
					"single item too large: %d > %d", len(candidate)+envelopeSize, maxSize)
			}
			frame, err := serialize(current)
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)
			// Start the next group with the item that did not fit; it may
			// itself be too large to stand alone.
			current = []json.RawMessage{item}
			single, err := json.Marshal(multiEventBody{Schema: parsed.Schema, Data: current})
			if err != nil {
				return nil, fault.Wrap(fault.MalformedInput, err, "unserializable body item")
			}
			if len(single)+envelopeSize > maxSize {
				return nil, fault.Errorf(fault.OversizedItem,
					"single item too large: %d > %d", len(single)+envelopeSize, maxSize)
			}
		} else {
			current = append(current, item)
		}
	}
	if len(current) > 0 {
		frame, err := serialize(current)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	slog.Info("split payload", "frames", len(frames))
	return frames, nil
}
