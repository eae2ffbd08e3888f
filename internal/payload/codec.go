package payload

import (
	"github.com/datenstrom/datenstrom/internal/fault"
)

// Record formats supported on the raw lane.
const (
	FormatThrift = "thrift"
	FormatAvro   = "avro"
)

// Serialize encodes p in the given wire format. The schema tag is stamped
// before encoding so a decoded frame always names its own layout.
func Serialize(p *CollectorPayload, format string) ([]byte, error) {
	switch format {
	case FormatThrift:
		p.Schema = SnowplowPayloadSchema
		return ToThrift(p)
	case FormatAvro:
		p.Schema = AvroSchemaName
		return ToAvro(p)
	default:
		return nil, fault.Errorf(fault.Fatal, "unknown record format %q", format)
	}
}

// Deserialize decodes a raw frame in the given wire format.
func Deserialize(b []byte, format string) (*CollectorPayload, error) {
	switch format {
	case FormatThrift:
		return FromThrift(b)
	case FormatAvro:
		return FromAvro(b)
	default:
		return nil, fault.Errorf(fault.Fatal, "unknown record format %q", format)
	}
}
