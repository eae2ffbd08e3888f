package payload

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datenstrom/datenstrom/internal/fault"
)

func samplePayload() *CollectorPayload {
	return &CollectorPayload{
		Schema:        SnowplowPayloadSchema,
		IPAddress:     "203.0.113.9",
		Timestamp:     1700000000000,
		Encoding:      "UTF-8",
		Collector:     "datenstrom-go-0.1.0",
		UserAgent:     "Mozilla/5.0",
		Path:          "/com.snowplowanalytics.snowplow/tp2",
		Querystring:   "e=pv&url=http%3A%2F%2Fexample.com",
		Body:          []byte(`{"schema":"s","data":[]}`),
		Headers:       []string{"Host: example.com", "Accept: */*"},
		ContentType:   "application/json",
		Hostname:      "example.com",
		NetworkUserID: "8d5dd1e4-6a3a-4c93-9f2c-8e1f1d1a0b10",
	}
}

func TestThriftKnownBytes(t *testing.T) {
	p := &CollectorPayload{
		Schema:    "iglu:com.acme/user/jsonschema/1-0-0",
		IPAddress: "sdsd",
		Timestamp: 123,
		Encoding:  "sdsd",
		Collector: "sdsd",
	}
	b, err := ToThrift(p)
	require.NoError(t, err)

	want := []byte("\x0bzi\x00\x00\x00#iglu:com.acme/user/jsonschema/1-0-0" +
		"\x0b\x00d\x00\x00\x00\x04sdsd\n\x00\xc8\x00\x00\x00\x00" +
		"\x00\x00\x00{\x0b\x00\xd2\x00\x00\x00\x04sdsd\x0b\x00" +
		"\xdc\x00\x00\x00\x04sdsd\x00")
	assert.Equal(t, want, b)

	back, err := FromThrift(b)
	require.NoError(t, err)
	assert.True(t, back.Equal(p))
}

func TestThriftRoundTrip(t *testing.T) {
	p := samplePayload()
	b, err := ToThrift(p)
	require.NoError(t, err)
	back, err := FromThrift(b)
	require.NoError(t, err)
	assert.True(t, back.Equal(p), "round-tripped payload differs")
}

func TestThriftDecodeGarbage(t *testing.T) {
	_, err := FromThrift([]byte("\x0bzi\x00\x00"))
	require.Error(t, err)
	assert.Equal(t, fault.DecodeError, fault.KindOf(err))
}

func TestAvroRoundTrip(t *testing.T) {
	for name, p := range map[string]*CollectorPayload{
		"full": samplePayload(),
		"minimal": {
			Schema:    AvroSchemaName,
			IPAddress: "198.51.100.1",
			Timestamp: 42,
			Encoding:  "UTF-8",
			Collector: "datenstrom-go-0.1.0",
		},
	} {
		t.Run(name, func(t *testing.T) {
			b, err := ToAvro(p)
			require.NoError(t, err)
			back, err := FromAvro(b)
			require.NoError(t, err)
			assert.True(t, back.Equal(p), "round-tripped payload differs")
		})
	}
}

func TestAvroDecodeTruncated(t *testing.T) {
	p := samplePayload()
	b, err := ToAvro(p)
	require.NoError(t, err)
	_, err = FromAvro(b[:len(b)/2])
	require.Error(t, err)
	assert.Equal(t, fault.DecodeError, fault.KindOf(err))
}

func TestSerializeStampsSchema(t *testing.T) {
	p := samplePayload()
	p.Schema = ""
	_, err := Serialize(p, FormatThrift)
	require.NoError(t, err)
	assert.Equal(t, SnowplowPayloadSchema, p.Schema)

	_, err = Serialize(p, FormatAvro)
	require.NoError(t, err)
	assert.Equal(t, AvroSchemaName, p.Schema)

	_, err = Serialize(p, "msgpack")
	require.Error(t, err)
}

func TestSplitSmallPayloadSingleFrame(t *testing.T) {
	p := samplePayload()
	frames, err := SplitAndSerialize(p, FormatAvro, 190000)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	back, err := FromAvro(frames[0])
	require.NoError(t, err)
	assert.True(t, back.Equal(p))
}

func splitBody(t *testing.T, items int, itemSize int) *CollectorPayload {
	t.Helper()
	data := make([]map[string]string, items)
	for i := range data {
		data[i] = map[string]string{
			"e":   "pv",
			"url": "http://example.com/" + strings.Repeat("x", itemSize),
		}
	}
	body, err := json.Marshal(map[string]any{
		"schema": "iglu:com.snowplowanalytics.snowplow/payload_data/jsonschema/1-0-4",
		"data":   data,
	})
	require.NoError(t, err)
	p := samplePayload()
	p.Body = body
	p.Querystring = ""
	return p
}

func TestSplitPreservesData(t *testing.T) {
	const maxSize = 2048
	p := splitBody(t, 10, 300)
	full, err := Serialize(p, FormatAvro)
	require.NoError(t, err)
	require.Greater(t, len(full), maxSize, "fixture must need splitting")

	frames, err := SplitAndSerialize(p, FormatAvro, maxSize)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(frames), 2)

	var original multiEventBody
	require.NoError(t, json.Unmarshal(p.Body, &original))

	var collected []json.RawMessage
	for i, frame := range frames {
		assert.LessOrEqual(t, len(frame), maxSize, "frame %d over limit", i)
		back, err := FromAvro(frame)
		require.NoError(t, err)
		var body multiEventBody
		require.NoError(t, json.Unmarshal(back.Body, &body))
		assert.Equal(t, original.Schema, body.Schema)
		collected = append(collected, body.Data...)
	}
	require.Len(t, collected, len(original.Data))
	for i := range collected {
		assert.JSONEq(t, string(original.Data[i]), string(collected[i]))
	}
}

func TestSplitOversizedItem(t *testing.T) {
	p := splitBody(t, 2, 4096)
	_, err := SplitAndSerialize(p, FormatAvro, 2048)
	require.Error(t, err)
	assert.Equal(t, fault.OversizedItem, fault.KindOf(err))
}

func TestSplitOversizedEnvelope(t *testing.T) {
	p := splitBody(t, 4, 300)
	p.Querystring = strings.Repeat("q", 4096)
	_, err := SplitAndSerialize(p, FormatAvro, 2048)
	require.Error(t, err)
	assert.Equal(t, fault.OversizedEnvelope, fault.KindOf(err))
}

func TestSplitMalformedBody(t *testing.T) {
	p := samplePayload()
	p.Body = []byte(strings.Repeat("not json ", 4096))
	_, err := SplitAndSerialize(p, FormatAvro, 2048)
	require.Error(t, err)
	assert.Equal(t, fault.MalformedInput, fault.KindOf(err))

	p.Body = []byte(`{"data": [` + strings.Repeat(`{"e":"pv"},`, 4096) + `{"e":"pv"}]}`)
	_, err = SplitAndSerialize(p, FormatAvro, 2048)
	require.Error(t, err)
	assert.Equal(t, fault.MalformedInput, fault.KindOf(err))
}

func TestHeadersMap(t *testing.T) {
	p := &CollectorPayload{Headers: []string{
		"Host: example.com",
		"X-Forwarded-For: 203.0.113.9, 10.0.0.1",
		"broken-header-without-separator",
	}}
	m := p.HeadersMap()
	assert.Equal(t, "example.com", m["host"])
	assert.Equal(t, "203.0.113.9, 10.0.0.1", m["x-forwarded-for"])
	assert.NotContains(t, m, "broken-header-without-separator")
}
