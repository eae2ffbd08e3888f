// Package payload holds the raw collector envelope and its wire codecs.
//
// A CollectorPayload is created once at ingest, travels the raw lane
// unchanged, and is discarded after the enricher acknowledges it. The Thrift
// layout is byte-for-byte compatible with Snowplow Stream Collector records;
// the Avro layout is the schemaless datenstrom record.
package payload

import (
	"strings"
	"time"
)

// SnowplowPayloadSchema tags a Thrift-encoded envelope.
const SnowplowPayloadSchema = "iglu:com.snowplowanalytics.snowplow/CollectorPayload/thrift/1-0-0"

// AvroSchemaName tags an Avro-encoded envelope.
const AvroSchemaName = "CollectorPayload"

// CollectorPayload is the raw envelope written by the collector. Optional
// string fields use "" for absent; Body uses nil.
type CollectorPayload struct {
	Schema    string `json:"schema"`
	IPAddress string `json:"ipAddress"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
	Encoding  string `json:"encoding"`
	Collector string `json:"collector"` // name and version

	UserAgent     string   `json:"userAgent,omitempty"`
	RefererURI    string   `json:"refererUri,omitempty"`
	Path          string   `json:"path,omitempty"`
	Querystring   string   `json:"querystring,omitempty"`
	Body          []byte   `json:"body,omitempty"`
	Headers       []string `json:"headers,omitempty"` // "Name: Value" pairs
	ContentType   string   `json:"contentType,omitempty"`
	Hostname      string   `json:"hostname,omitempty"`
	NetworkUserID string   `json:"networkUserId,omitempty"`
}

// HeadersMap splits the stored "Name: Value" pairs into a map with
// lower-cased names. Entries without a separator are dropped.
func (p *CollectorPayload) HeadersMap() map[string]string {
	out := make(map[string]string, len(p.Headers))
	for _, h := range p.Headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return out
}

// Equal compares two payloads field by field, treating nil and empty Body
// and Headers as equal. Used by the codec round-trip tests.
func (p *CollectorPayload) Equal(o *CollectorPayload) bool {
	if p.Schema != o.Schema || p.IPAddress != o.IPAddress ||
		p.Timestamp != o.Timestamp || p.Encoding != o.Encoding ||
		p.Collector != o.Collector || p.UserAgent != o.UserAgent ||
		p.RefererURI != o.RefererURI || p.Path != o.Path ||
		p.Querystring != o.Querystring || p.ContentType != o.ContentType ||
		p.Hostname != o.Hostname || p.NetworkUserID != o.NetworkUserID {
		return false
	}
	if string(p.Body) != string(o.Body) {
		return false
	}
	if len(p.Headers) != len(o.Headers) {
		return false
	}
	for i := range p.Headers {
		if p.Headers[i] != o.Headers[i] {
			return false
		}
	}
	return true
}

// ErrorPayload is the record written to the errors lane when a raw payload
// cannot be processed. Payload retains the offending input bytes.
type ErrorPayload struct {
	CollectorDomain string    `json:"collector_domain"`
	Reason          string    `json:"reason"`
	Tstamp          time.Time `json:"tstamp"`
	Payload         []byte    `json:"payload,omitempty"`
}

// NewErrorPayload stamps an error record with the current UTC time.
func NewErrorPayload(domain, reason string, raw []byte) *ErrorPayload {
	return &ErrorPayload{
		CollectorDomain: domain,
		Reason:          reason,
		Tstamp:          time.Now().UTC(),
		Payload:         raw,
	}
}
