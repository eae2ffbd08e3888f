package enrich

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/payload"
	"github.com/datenstrom/datenstrom/internal/registry"
	"github.com/datenstrom/datenstrom/internal/schema"
)

func rawEnvelope() *payload.CollectorPayload {
	return &payload.CollectorPayload{
		IPAddress: "203.0.113.9",
		Timestamp: 1700000000000,
		Encoding:  "UTF-8",
		Collector: "datenstrom-go-test",
		Hostname:  "events.example.com",
	}
}

func testRegistry(t *testing.T) *registry.Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Transport = "dev"
	return registry.NewManager(cfg, clock.New())
}

func TestScratchpadRejectsUnknownField(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), nil)
	err := sp.SetValue("not_a_field", "x")
	require.Error(t, err)
	assert.Equal(t, fault.MalformedInput, fault.KindOf(err))
}

func TestScratchpadRejectsDirectEventWrites(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), nil)
	assert.Error(t, sp.SetValue("event", map[string]any{}))
	assert.Error(t, sp.SetValue("contexts", []any{}))
}

func TestScratchpadTypeChecksValues(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), nil)
	assert.Error(t, sp.SetValue("event_id", 42), "string field rejects an int")
	assert.Error(t, sp.SetValue("session_idx", "five"), "int field rejects a string")
	assert.Error(t, sp.SetValue("tstamp", "2024-01-01"), "time field rejects a string")
	assert.NoError(t, sp.SetValue("session_idx", int64(5)))
}

func TestScratchpadMirrorsAtomicWritesIntoTemp(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), nil)
	require.NoError(t, sp.SetValue("platform", "web"))
	assert.True(t, sp.IsSet("platform"))
	assert.Equal(t, "web", sp.GetString("platform"))
}

func TestScratchpadDuplicateContext(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), nil)
	ctx := schema.SelfDescribingContext{Schema: schema.CampaignAttributionSchema, Data: map[string]any{}}
	require.NoError(t, sp.AddContext(ctx))
	assert.Error(t, sp.AddContext(ctx))
}

func finalisableScratchpad(t *testing.T) *Scratchpad {
	t.Helper()
	sp := NewScratchpad(rawEnvelope(), nil)
	now := time.Now().UTC()
	for field, value := range map[string]any{
		"event_id":         "8d5a3f5e-1af8-44c5-9e5b-2b1d6e28b1aa",
		"collector_host":   "events.example.com",
		"platform":         "web",
		"event_vendor":     "io.datenstrom",
		"event_name":       "page_view",
		"event_format":     "jsonschema",
		"event_version":    "1-0-0",
		"v_collector":      "datenstrom-go-test",
		"v_etl":            "0.1.0",
		"tstamp":           now,
		"collector_tstamp": now,
		"etl_tstamp":       now,
	} {
		require.NoError(t, sp.SetValue(field, value))
	}
	require.NoError(t, sp.SetEvent(schema.SelfDescribingEvent{
		Schema: schema.PageViewSchema,
		Data:   map[string]any{"page_url": "https://example.com/"},
	}))
	return sp
}

func TestScratchpadFinaliseIsConsuming(t *testing.T) {
	sp := finalisableScratchpad(t)
	event, err := sp.ToAtomicEvent()
	require.NoError(t, err)
	assert.Equal(t, "page_view", event.EventName)

	_, err = sp.ToAtomicEvent()
	assert.Error(t, err, "second finalisation must fail")
	assert.Error(t, sp.SetValue("platform", "mob"), "writes after finalisation must fail")
}

func TestScratchpadFinaliseNamesMissingFields(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), nil)
	require.NoError(t, sp.SetValue("platform", "web"))
	_, err := sp.ToAtomicEvent()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event_id")
	assert.Contains(t, err.Error(), "collector_tstamp")
}

func TestTransformTypesTrackerFields(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), map[string]any{
		"eid": "e1",
		"p":   "mob",
		"dtm": "1700000000000",
		"vid": "5",
		"ip":  "203.0.113.9, 10.0.0.1",
		"ua":  "curl/8.0",
	})
	require.NoError(t, Transform{}.Enrich(sp))

	assert.Equal(t, "e1", sp.Get("event_id"))
	assert.Equal(t, "mob", sp.Get("platform"))
	assert.Equal(t, int64(5), sp.Get("domain_sessionidx"))
	assert.Equal(t, "203.0.113.9", sp.Get("user_ipaddress"), "first address of the list wins")
	assert.Equal(t, TstampFromMillis(1700000000000), sp.Get("dvce_created_tstamp"))
}

func TestTransformRejectsBadInteger(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), map[string]any{"vid": "not-a-number"})
	err := Transform{}.Enrich(sp)
	require.Error(t, err)
	assert.Equal(t, fault.MalformedInput, fault.KindOf(err))
}

func TestProcessingInfo(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), nil)
	require.NoError(t, ProcessingInfo{}.Enrich(sp))

	assert.Equal(t, "datenstrom-go-test", sp.Get("v_collector"))
	assert.Equal(t, "events.example.com", sp.Get("collector_host"))
	assert.Equal(t, TstampFromMillis(1700000000000), sp.Get("collector_tstamp"))
	assert.True(t, sp.IsSet("v_etl"))
}

func TestPostProcessingDefaults(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))

	sp := NewScratchpad(rawEnvelope(), nil)
	collector := TstampFromMillis(1700000000000)
	require.NoError(t, sp.SetValue("collector_tstamp", collector))
	require.NoError(t, PostProcessing{Clock: clk}.Enrich(sp))

	assert.True(t, sp.IsSet("event_id"), "missing event id gets generated")
	assert.Equal(t, collector, sp.Get("tstamp"))
	assert.Equal(t, clk.Now().UTC(), sp.Get("etl_tstamp"))
	assert.Equal(t, "web", sp.Get("platform"))
}

func TestPostProcessingClockSkewCorrection(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), nil)
	collector := TstampFromMillis(1700000000000)
	created := TstampFromMillis(1699999990000)
	sent := TstampFromMillis(1699999995000)
	require.NoError(t, sp.SetValue("collector_tstamp", collector))
	require.NoError(t, sp.SetValue("dvce_created_tstamp", created))
	require.NoError(t, sp.SetValue("dvce_sent_tstamp", sent))
	require.NoError(t, PostProcessing{}.Enrich(sp))

	assert.Equal(t, collector.Add(-5*time.Second), sp.Get("tstamp"))
}

func TestPostProcessingTrueTimestampWins(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), nil)
	trueTstamp := TstampFromMillis(1600000000000)
	require.NoError(t, sp.SetValue("collector_tstamp", TstampFromMillis(1700000000000)))
	require.NoError(t, sp.SetValue("true_tstamp", trueTstamp))
	require.NoError(t, PostProcessing{}.Enrich(sp))

	assert.Equal(t, trueTstamp, sp.Get("tstamp"))
}

func TestRedactIP(t *testing.T) {
	assert.Equal(t, "203.0.113.x", RedactIP("203.0.113.9"))
	assert.Equal(t, "::1", RedactIP("::1"), "non dotted-quad addresses pass through")
	assert.Equal(t, "10.1.2", RedactIP("10.1.2"), "short values pass through")
}

func TestPIIEnrichment(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), nil)
	require.NoError(t, sp.SetValue("user_ipaddress", "203.0.113.9"))
	require.NoError(t, PII{}.Enrich(sp))
	assert.Equal(t, "203.0.113.x", sp.Get("user_ipaddress"))

	sp = NewScratchpad(rawEnvelope(), nil)
	require.NoError(t, sp.SetValue("user_ipaddress", "203.0.113.9"))
	require.NoError(t, PII{FullIP: true}.Enrich(sp))
	assert.Equal(t, "203.0.113.9", sp.Get("user_ipaddress"), "full ip kept when allowed")
}

func TestDecodeBase64JSONAlphabets(t *testing.T) {
	// URL-safe alphabet, unpadded, the way ue_px arrives from browsers.
	raw := `{"schema":"iglu:a/b/jsonschema/1-0-0","data":{"k":"?~"}}`
	encoded := base64.RawURLEncoding.EncodeToString([]byte(raw))

	var out selfDescribing
	require.NoError(t, decodeBase64JSON(encoded, &out))
	assert.Equal(t, "iglu:a/b/jsonschema/1-0-0", out.Schema)

	encoded = base64.StdEncoding.EncodeToString([]byte(raw))
	require.NoError(t, decodeBase64JSON(encoded, &out))

	err := decodeBase64JSON("!!!not base64!!!", &out)
	require.Error(t, err)
	assert.Equal(t, fault.MalformedInput, fault.KindOf(err))
}

func TestEventExtractionUnstructured(t *testing.T) {
	inner := `{"schema":"` + schema.PageViewSchema + `","data":{"page_url":"https://example.com/"}}`
	uePr := `{"schema":"iglu:com.snowplowanalytics.snowplow/unstruct_event/jsonschema/1-0-0","data":` + inner + `}`

	sp := NewScratchpad(rawEnvelope(), map[string]any{"ue_pr": uePr})
	require.NoError(t, EventExtraction{Registry: testRegistry(t)}.Enrich(sp))

	require.True(t, sp.HasEvent())
	assert.Equal(t, schema.PageViewSchema, sp.Event().Schema)
	assert.Equal(t, "page_view", sp.Get("event_name"))
	assert.Equal(t, "io.datenstrom", sp.Get("event_vendor"))
}

func TestEventExtractionFiltersTempToSchemaFields(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), map[string]any{
		"schema": schema.PageViewSchema,
		"url":    "https://example.com/",
		"page":   "Home",
		"uid":    "should-not-leak-into-event",
	})
	require.NoError(t, EventExtraction{Registry: testRegistry(t)}.Enrich(sp))

	ev := sp.Event()
	require.NotNil(t, ev)
	assert.Equal(t, "https://example.com/", ev.Data["page_url"])
	assert.Equal(t, "Home", ev.Data["page_title"])
	assert.NotContains(t, ev.Data, "uid")
}

func TestEventExtractionFlattensStructuredEvent(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), map[string]any{
		"schema": schema.StructuredEventSchema,
		"se_ca":  "checkout",
		"se_ac":  "click",
		"se_va":  "42",
	})
	require.NoError(t, EventExtraction{Registry: testRegistry(t)}.Enrich(sp))

	assert.Equal(t, "checkout", sp.Get("category"))
	assert.Equal(t, "click", sp.Get("action"))
	assert.Equal(t, "42", sp.Get("value"))
}

func TestContextExtraction(t *testing.T) {
	co := `{"schema":"iglu:com.snowplowanalytics.snowplow/contexts/jsonschema/1-0-1",` +
		`"data":[{"schema":"` + schema.CampaignAttributionSchema + `","data":{"campaign":"spring"}}]}`

	sp := NewScratchpad(rawEnvelope(), map[string]any{"co": co})
	require.NoError(t, ContextExtraction{Registry: testRegistry(t)}.Enrich(sp))

	contexts := sp.Contexts()
	require.Len(t, contexts, 1)
	assert.Equal(t, schema.CampaignAttributionSchema, contexts[0].Schema)
	assert.Equal(t, "spring", contexts[0].Data["campaign"])
}

func TestContextExtractionRejectsUnknownSchema(t *testing.T) {
	co := `{"schema":"iglu:com.snowplowanalytics.snowplow/contexts/jsonschema/1-0-1",` +
		`"data":[{"schema":"iglu:com.nowhere/missing/jsonschema/1-0-0","data":{}}]}`

	cfg := config.Default()
	cfg.Transport = "dev"
	cfg.IgluSchemaRegistries = nil
	reg := registry.NewManager(cfg, clock.New())

	sp := NewScratchpad(rawEnvelope(), map[string]any{"co": co})
	err := ContextExtraction{Registry: reg}.Enrich(sp)
	require.Error(t, err)
	assert.Equal(t, fault.SchemaNotFound, fault.KindOf(err))
}

func TestCampaignEnrichment(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), map[string]any{
		"page_url": "https://example.com/?utm_campaign=spring&utm_source=mail&gclid=abc123",
	})
	require.NoError(t, Campaign{}.Enrich(sp))

	contexts := sp.Contexts()
	require.Len(t, contexts, 1)
	data := contexts[0].Data
	assert.Equal(t, "spring", data["campaign"])
	assert.Equal(t, "mail", data["source"])
	assert.Equal(t, "google", data["network"])
	assert.Equal(t, "abc123", data["click_id"])
}

func TestCampaignEnrichmentNoParameters(t *testing.T) {
	sp := NewScratchpad(rawEnvelope(), map[string]any{
		"page_url": "https://example.com/pricing",
	})
	require.NoError(t, Campaign{}.Enrich(sp))
	assert.Empty(t, sp.Contexts())
}
