// Package processor drives the enrichment chain for raw collector payloads.
package processor

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/datenstrom/datenstrom/internal/cache"
	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/enrich"
	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/payload"
	"github.com/datenstrom/datenstrom/internal/registry"
	"github.com/datenstrom/datenstrom/internal/schema"
)

const remoteConfigCacheSize = 2048

// eventTypeSchema resolves the tracker "e" code to the schema of the event
// body. The "ue" code carries its schema inline and is not mapped here.
func eventTypeSchema(eventType string) (string, error) {
	switch eventType {
	case "pv":
		return schema.PageViewSchema, nil
	case "pp":
		return schema.PagePingSchema, nil
	case "se":
		return schema.StructuredEventSchema, nil
	case "tr":
		return schema.TransactionSchema, nil
	case "ti":
		return schema.TransactionItemSchema, nil
	}
	return "", fault.Errorf(fault.MalformedInput, "invalid event type: %s", eventType)
}

// RawProcessor expands one raw collector payload into its atomic events. A
// failure on any contained event fails the whole payload.
type RawProcessor struct {
	cfg          *config.Config
	registry     *registry.Manager
	enrichments  []enrich.Enricher
	remoteConfig *cache.Client
}

// New wires the enrichment chain from the configuration. GeoIP and device
// parsing are only constructed when enabled.
func New(cfg *config.Config, clk clock.Clock) (*RawProcessor, error) {
	p := &RawProcessor{
		cfg:          cfg,
		registry:     registry.NewManager(cfg, clk),
		remoteConfig: cache.NewClient(remoteConfigCacheSize, cfg.CacheTTL(), cfg.CacheNoneTTL(), clk),
	}

	p.enrichments = append(p.enrichments,
		enrich.ProcessingInfo{},
		enrich.Transform{},
		enrich.EventExtraction{Registry: p.registry},
		enrich.ContextExtraction{Registry: p.registry},
	)
	if cfg.TenantLookupEndpoint != "" {
		p.enrichments = append(p.enrichments, enrich.NewTenant(cfg.TenantLookupEndpoint, cfg.CacheNoneTTL(), clk))
	}
	if cfg.GeoipEnabled {
		geo, err := enrich.NewGeoIP(cfg)
		if err != nil {
			return nil, err
		}
		p.enrichments = append(p.enrichments, geo)
	}
	if cfg.CampaignEnrichmentEnabled {
		p.enrichments = append(p.enrichments, enrich.Campaign{})
	}
	if cfg.DeviceEnrichmentEnabled {
		p.enrichments = append(p.enrichments, enrich.NewDevice())
	}
	if cfg.AuthenticationPublicKey != "" || len(cfg.AuthenticationIssJWKURLs) > 0 {
		auth, err := enrich.NewAuthentication(cfg, clk)
		if err != nil {
			return nil, err
		}
		p.enrichments = append(p.enrichments, auth)
	}
	p.enrichments = append(p.enrichments, enrich.PostProcessing{Clock: clk})
	return p, nil
}

// remoteSettings is the per-hostname configuration served by the remote
// config endpoint.
type remoteSettings struct {
	EnableFullIP bool `json:"enable_full_ip"`
}

func (p *RawProcessor) remoteSettingsFor(hostname string) remoteSettings {
	var settings remoteSettings
	if p.cfg.RemoteConfigEndpoint == "" || hostname == "" {
		return settings
	}
	p.remoteConfig.GetJSON(p.cfg.RemoteConfigEndpoint, map[string]string{"hostname": hostname}, &settings)
	return settings
}

// Process expands the raw payload into atomic events. All events succeed or
// the whole payload fails.
func (p *RawProcessor) Process(raw *payload.CollectorPayload) ([]*schema.AtomicEvent, error) {
	settings := p.remoteSettingsFor(raw.Hostname)

	eventDict := make(map[string]any)
	if raw.IPAddress != "" {
		eventDict["ip"] = raw.IPAddress
	}
	if raw.UserAgent != "" {
		eventDict["ua"] = raw.UserAgent
	}
	if raw.NetworkUserID != "" {
		eventDict["nuid"] = raw.NetworkUserID
	}

	if raw.Querystring != "" {
		values, err := url.ParseQuery(raw.Querystring)
		if err != nil {
			return nil, fault.Wrap(fault.MalformedInput, err, "unparsable query string")
		}
		// Duplicate keys resolve to the last value.
		for key, list := range values {
			if len(list) > 0 {
				eventDict[key] = list[len(list)-1]
			}
		}
	}

	if err := assignSchemaFromEventType(eventDict); err != nil {
		return nil, err
	}

	var allEvents []map[string]any
	if len(raw.Body) > 0 {
		overlays, err := p.extractEventsFromBody(raw.Body, raw.ContentType, eventDict)
		if err != nil {
			return nil, err
		}
		for _, overlay := range overlays {
			merged := make(map[string]any, len(eventDict)+len(overlay))
			for k, v := range eventDict {
				merged[k] = v
			}
			for k, v := range overlay {
				merged[k] = v
			}
			allEvents = append(allEvents, merged)
		}
	} else {
		allEvents = append(allEvents, eventDict)
	}

	atomicEvents := make([]*schema.AtomicEvent, 0, len(allEvents))
	for _, initial := range allEvents {
		if err := assignSchemaFromEventType(initial); err != nil {
			return nil, err
		}

		sp := enrich.NewScratchpad(raw, initial)
		for _, enrichment := range p.enrichments {
			if err := enrichment.Enrich(sp); err != nil {
				return nil, err
			}
		}
		if err := (enrich.PII{FullIP: settings.EnableFullIP}).Enrich(sp); err != nil {
			return nil, err
		}
		event, err := sp.ToAtomicEvent()
		if err != nil {
			return nil, err
		}
		atomicEvents = append(atomicEvents, event)
	}
	return atomicEvents, nil
}

// assignSchemaFromEventType sets the schema key from the tracker event code
// when one is present.
func assignSchemaFromEventType(eventDict map[string]any) error {
	v, present := eventDict["e"]
	if !present {
		return nil
	}
	code, ok := v.(string)
	if !ok {
		return fault.New(fault.MalformedInput, "event type is not a string")
	}
	if code == "ue" {
		return nil
	}
	ref, err := eventTypeSchema(code)
	if err != nil {
		return err
	}
	eventDict["schema"] = ref
	return nil
}

// extractEventsFromBody expands the request body into per-event overlay
// dicts. A payload_data body yields one overlay per item; any other body is
// a single self-describing event.
func (p *RawProcessor) extractEventsFromBody(body []byte, contentType string, eventDict map[string]any) ([]map[string]any, error) {
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		return nil, fault.New(fault.MalformedInput, "unsupported content type: application/x-www-form-urlencoded")
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fault.Wrap(fault.MalformedInput, err, "invalid body (not an object)")
	}

	if schemaRef, ok := data["schema"].(string); ok &&
		strings.HasPrefix(schemaRef, schema.PayloadDataSchemaPrefix) {
		items, ok := data["data"]
		if !ok {
			return nil, fault.New(fault.MalformedInput, "missing data in body")
		}
		if err := p.registry.Validate(schemaRef, items); err != nil {
			return nil, err
		}
		list, ok := items.([]any)
		if !ok {
			return nil, fault.New(fault.MalformedInput, "payload data is not a list")
		}
		overlays := make([]map[string]any, 0, len(list))
		for _, item := range list {
			overlay, ok := item.(map[string]any)
			if !ok {
				return nil, fault.New(fault.MalformedInput, "payload data item is not an object")
			}
			overlays = append(overlays, overlay)
		}
		return overlays, nil
	}

	if schemaRef, ok := eventDict["schema"].(string); ok && schemaRef != "" {
		// The query string named the schema; the body is the event itself.
		if err := p.registry.Validate(schemaRef, data); err != nil {
			return nil, err
		}
		return []map[string]any{{"schema": schemaRef, "event": data}}, nil
	}

	schemaRef, ok := data["schema"].(string)
	if !ok || schemaRef == "" {
		return nil, fault.New(fault.MalformedInput, "missing schema in body")
	}
	eventData, ok := data["data"]
	if !ok {
		return nil, fault.New(fault.MalformedInput, "missing data in body")
	}
	eventObject, ok := eventData.(map[string]any)
	if !ok {
		return nil, fault.New(fault.MalformedInput, "event data is not an object")
	}
	return []map[string]any{{"schema": schemaRef, "event": eventObject}}, nil
}
