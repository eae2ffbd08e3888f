package worker

import (
	"encoding/json"

	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/payload"
	"github.com/datenstrom/datenstrom/internal/schema"
)

// DecodeRaw returns the raw-lane decoder bound to the configured wire
// format.
func DecodeRaw(format string) func([]byte) (*payload.CollectorPayload, error) {
	return func(b []byte) (*payload.CollectorPayload, error) {
		return payload.Deserialize(b, format)
	}
}

// DecodeEvent decodes an events-lane record.
func DecodeEvent(b []byte) (*schema.AtomicEvent, error) {
	var event schema.AtomicEvent
	if err := json.Unmarshal(b, &event); err != nil {
		return nil, fault.Wrap(fault.DecodeError, err, "invalid atomic event json")
	}
	return &event, nil
}

// DecodeError decodes an errors-lane record. Bytes that are not an
// ErrorPayload are kept as the payload of a synthetic one so downstream
// consumers never lose the record.
func DecodeError(b []byte) *payload.ErrorPayload {
	var ep payload.ErrorPayload
	if err := json.Unmarshal(b, &ep); err != nil {
		return payload.NewErrorPayload("", "undecodable error payload", b)
	}
	return &ep
}
