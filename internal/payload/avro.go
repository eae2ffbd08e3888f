package payload

import (
	"sync"

	"github.com/linkedin/goavro/v2"

	"github.com/datenstrom/datenstrom/internal/fault"
)

// rawAvroSchema is the schemaless record layout of a raw envelope. Optional
// fields are nullable unions so an absent value costs one byte on the wire.
const rawAvroSchema = `{
  "type": "record",
  "name": "CollectorPayload",
  "namespace": "io.datenstrom",
  "fields": [
    {"name": "schema", "type": "string"},
    {"name": "ipAddress", "type": "string"},
    {"name": "timestamp", "type": "long"},
    {"name": "encoding", "type": "string"},
    {"name": "collector", "type": "string"},
    {"name": "userAgent", "type": ["null", "string"]},
    {"name": "refererUri", "type": ["null", "string"]},
    {"name": "path", "type": ["null", "string"]},
    {"name": "querystring", "type": ["null", "string"]},
    {"name": "body", "type": ["null", "bytes"]},
    {"name": "headers", "type": ["null", {"type": "array", "items": "string"}]},
    {"name": "contentType", "type": ["null", "string"]},
    {"name": "hostname", "type": ["null", "string"]},
    {"name": "networkUserId", "type": ["null", "string"]}
  ]
}`

var (
	avroOnce  sync.Once
	avroCodec *goavro.Codec
	avroErr   error
)

func codec() (*goavro.Codec, error) {
	avroOnce.Do(func() {
		avroCodec, avroErr = goavro.NewCodec(rawAvroSchema)
	})
	return avroCodec, avroErr
}

func optString(v string) any {
	if v == "" {
		return nil
	}
	return map[string]any{"string": v}
}

// ToAvro encodes the payload as a schemaless Avro record.
func ToAvro(p *CollectorPayload) ([]byte, error) {
	c, err := codec()
	if err != nil {
		return nil, err
	}
	native := map[string]any{
		"schema":        p.Schema,
		"ipAddress":     p.IPAddress,
		"timestamp":     p.Timestamp,
		"encoding":      p.Encoding,
		"collector":     p.Collector,
		"userAgent":     optString(p.UserAgent),
		"refererUri":    optString(p.RefererURI),
		"path":          optString(p.Path),
		"querystring":   optString(p.Querystring),
		"body":          nil,
		"headers":       nil,
		"contentType":   optString(p.ContentType),
		"hostname":      optString(p.Hostname),
		"networkUserId": optString(p.NetworkUserID),
	}
	if p.Body != nil {
		native["body"] = map[string]any{"bytes": p.Body}
	}
	if p.Headers != nil {
		headers := make([]any, len(p.Headers))
		for i, h := range p.Headers {
			headers[i] = h
		}
		native["headers"] = map[string]any{"array": headers}
	}
	return c.BinaryFromNative(nil, native)
}

// FromAvro decodes a schemaless Avro record. Truncated or garbage input maps
// to a DecodeError.
func FromAvro(b []byte) (*CollectorPayload, error) {
	c, err := codec()
	if err != nil {
		return nil, err
	}
	native, _, err := c.NativeFromBinary(b)
	if err != nil {
		return nil, fault.Wrap(fault.DecodeError, err, "invalid avro message")
	}
	record, ok := native.(map[string]any)
	if !ok {
		return nil, fault.New(fault.DecodeError, "avro message is not a record")
	}

	str := func(key string) string {
		v, _ := record[key].(string)
		return v
	}
	unionStr := func(key string) string {
		union, ok := record[key].(map[string]any)
		if !ok {
			return ""
		}
		v, _ := union["string"].(string)
		return v
	}

	p := &CollectorPayload{
		Schema:        str("schema"),
		IPAddress:     str("ipAddress"),
		Encoding:      str("encoding"),
		Collector:     str("collector"),
		UserAgent:     unionStr("userAgent"),
		RefererURI:    unionStr("refererUri"),
		Path:          unionStr("path"),
		Querystring:   unionStr("querystring"),
		ContentType:   unionStr("contentType"),
		Hostname:      unionStr("hostname"),
		NetworkUserID: unionStr("networkUserId"),
	}
	if ts, ok := record["timestamp"].(int64); ok {
		p.Timestamp = ts
	}
	if union, ok := record["body"].(map[string]any); ok {
		if body, ok := union["bytes"].([]byte); ok {
			p.Body = body
		}
	}
	if union, ok := record["headers"].(map[string]any); ok {
		if items, ok := union["array"].([]any); ok {
			headers := make([]string, 0, len(items))
			for _, item := range items {
				if s, ok := item.(string); ok {
					headers = append(headers, s)
				}
			}
			p.Headers = headers
		}
	}
	return p, nil
}
