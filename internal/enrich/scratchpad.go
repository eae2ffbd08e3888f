// Package enrich turns decoded collector payloads into atomic events.
//
// A Scratchpad is built per tracker event and handed down the enrichment
// chain; every enricher mutates it in place. Finalising the scratchpad is a
// consuming operation: once ToAtomicEvent has run, further writes fail.
package enrich

import (
	"fmt"
	"strings"
	"time"

	"github.com/datenstrom/datenstrom/internal/fault"
	"github.com/datenstrom/datenstrom/internal/payload"
	"github.com/datenstrom/datenstrom/internal/schema"
)

// Scratchpad accumulates the state of one tracker event while the chain
// runs. Temp carries the raw tracker keys plus intermediate typed values;
// atomic fields are written through SetValue only.
type Scratchpad struct {
	Raw  *payload.CollectorPayload
	Temp map[string]any

	atomic       schema.AtomicEvent
	atomicSet    map[string]bool
	contexts     []schema.SelfDescribingContext
	contextNames map[string]bool
	event        *schema.SelfDescribingEvent
	done         bool
}

// NewScratchpad builds a scratchpad over the raw envelope with the initial
// tracker key/value data.
func NewScratchpad(raw *payload.CollectorPayload, initial map[string]any) *Scratchpad {
	temp := initial
	if temp == nil {
		temp = make(map[string]any)
	}
	return &Scratchpad{
		Raw:          raw,
		Temp:         temp,
		atomicSet:    make(map[string]bool),
		contextNames: make(map[string]bool),
	}
}

// IsSet reports whether an atomic field has been written.
func (s *Scratchpad) IsSet(field string) bool {
	return s.atomicSet[field]
}

// Has reports whether the temp data carries key.
func (s *Scratchpad) Has(key string) bool {
	_, ok := s.Temp[key]
	return ok
}

// Get returns the temp value for key.
func (s *Scratchpad) Get(key string) any {
	return s.Temp[key]
}

// GetString returns the temp value for key rendered as a string.
func (s *Scratchpad) GetString(key string) string {
	v, ok := s.Temp[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// SetValue writes an atomic field, mirroring it into the temp data so later
// enrichers can read it back. Unknown fields and the event/contexts fields
// are rejected.
func (s *Scratchpad) SetValue(field string, value any) error {
	if s.done {
		return fault.Errorf(fault.MalformedInput, "write to finalised event: %s", field)
	}
	if field == "event" || field == "contexts" {
		return fault.Errorf(fault.MalformedInput, "field %s cannot be set directly", field)
	}
	setter, ok := atomicSetters[field]
	if !ok {
		return fault.Errorf(fault.MalformedInput, "field %s is not part of the atomic event", field)
	}
	if err := setter(&s.atomic, value); err != nil {
		return fault.Errorf(fault.MalformedInput, "field %s: %v", field, err)
	}
	s.atomicSet[field] = true
	s.Temp[field] = value
	return nil
}

// AddContext attaches a context. Adding the same schema twice is an error.
func (s *Scratchpad) AddContext(ctx schema.SelfDescribingContext) error {
	if s.done {
		return fault.New(fault.MalformedInput, "context added to finalised event")
	}
	if s.contextNames[ctx.Schema] {
		return fault.Errorf(fault.MalformedInput, "context %s already exists", ctx.Schema)
	}
	s.contextNames[ctx.Schema] = true
	s.contexts = append(s.contexts, ctx)
	return nil
}

// SetEvent sets the self-describing event. It can be set once.
func (s *Scratchpad) SetEvent(ev schema.SelfDescribingEvent) error {
	if s.done {
		return fault.New(fault.MalformedInput, "event set on finalised scratchpad")
	}
	if s.event != nil {
		return fault.New(fault.MalformedInput, "event data already set")
	}
	s.event = &ev
	return nil
}

// HasEvent reports whether the self-describing event is set.
func (s *Scratchpad) HasEvent() bool { return s.event != nil }

// Event returns the self-describing event, or nil.
func (s *Scratchpad) Event() *schema.SelfDescribingEvent { return s.event }

// Contexts returns the attached contexts in insertion order.
func (s *Scratchpad) Contexts() []schema.SelfDescribingContext { return s.contexts }

// requiredAtomicFields must all be set before finalisation.
var requiredAtomicFields = []string{
	"event_id", "collector_host", "platform",
	"event_vendor", "event_name", "event_format", "event_version",
	"tstamp", "collector_tstamp", "etl_tstamp",
	"v_collector", "v_etl",
}

// ToAtomicEvent finalises the scratchpad. It consumes the scratchpad; a
// second call fails.
func (s *Scratchpad) ToAtomicEvent() (*schema.AtomicEvent, error) {
	if s.done {
		return nil, fault.New(fault.MalformedInput, "scratchpad already finalised")
	}
	s.done = true

	var missing []string
	for _, field := range requiredAtomicFields {
		if !s.atomicSet[field] {
			missing = append(missing, field)
		}
	}
	if s.event == nil {
		missing = append(missing, "event")
	}
	if len(missing) > 0 {
		return nil, fault.Errorf(fault.MalformedInput,
			"invalid atomic event: %d errors in [%s]", len(missing), strings.Join(missing, " "))
	}

	out := s.atomic
	out.Event = *s.event
	out.Contexts = s.contexts
	if out.Contexts == nil {
		out.Contexts = []schema.SelfDescribingContext{}
	}
	return &out, nil
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asTime(v any) (time.Time, error) {
	ts, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("expected timestamp, got %T", v)
	}
	return ts, nil
}

func stringField(dst func(*schema.AtomicEvent) *string) func(*schema.AtomicEvent, any) error {
	return func(e *schema.AtomicEvent, v any) error {
		s, err := asString(v)
		if err != nil {
			return err
		}
		*dst(e) = s
		return nil
	}
}

func optStringField(dst func(*schema.AtomicEvent) **string) func(*schema.AtomicEvent, any) error {
	return func(e *schema.AtomicEvent, v any) error {
		s, err := asString(v)
		if err != nil {
			return err
		}
		*dst(e) = &s
		return nil
	}
}

func optIntField(dst func(*schema.AtomicEvent) **int64) func(*schema.AtomicEvent, any) error {
	return func(e *schema.AtomicEvent, v any) error {
		n, err := asInt64(v)
		if err != nil {
			return err
		}
		*dst(e) = &n
		return nil
	}
}

func timeField(dst func(*schema.AtomicEvent) *time.Time) func(*schema.AtomicEvent, any) error {
	return func(e *schema.AtomicEvent, v any) error {
		ts, err := asTime(v)
		if err != nil {
			return err
		}
		*dst(e) = ts
		return nil
	}
}

func optTimeField(dst func(*schema.AtomicEvent) **time.Time) func(*schema.AtomicEvent, any) error {
	return func(e *schema.AtomicEvent, v any) error {
		ts, err := asTime(v)
		if err != nil {
			return err
		}
		*dst(e) = &ts
		return nil
	}
}

var atomicSetters = map[string]func(*schema.AtomicEvent, any) error{
	"event_id":       stringField(func(e *schema.AtomicEvent) *string { return &e.EventID }),
	"collector_host": stringField(func(e *schema.AtomicEvent) *string { return &e.CollectorHost }),
	"platform":       stringField(func(e *schema.AtomicEvent) *string { return &e.Platform }),
	"event_vendor":   stringField(func(e *schema.AtomicEvent) *string { return &e.EventVendor }),
	"event_name":     stringField(func(e *schema.AtomicEvent) *string { return &e.EventName }),
	"event_format":   stringField(func(e *schema.AtomicEvent) *string { return &e.EventFormat }),
	"event_version":  stringField(func(e *schema.AtomicEvent) *string { return &e.EventVersion }),
	"v_collector":    stringField(func(e *schema.AtomicEvent) *string { return &e.VCollector }),
	"v_etl":          stringField(func(e *schema.AtomicEvent) *string { return &e.VEtl }),

	"tenant":     optStringField(func(e *schema.AtomicEvent) **string { return &e.Tenant }),
	"identifier": optStringField(func(e *schema.AtomicEvent) **string { return &e.Identifier }),

	"tstamp":              timeField(func(e *schema.AtomicEvent) *time.Time { return &e.Tstamp }),
	"collector_tstamp":    timeField(func(e *schema.AtomicEvent) *time.Time { return &e.CollectorTstamp }),
	"etl_tstamp":          timeField(func(e *schema.AtomicEvent) *time.Time { return &e.EtlTstamp }),
	"dvce_created_tstamp": optTimeField(func(e *schema.AtomicEvent) **time.Time { return &e.DvceCreatedTstamp }),
	"dvce_sent_tstamp":    optTimeField(func(e *schema.AtomicEvent) **time.Time { return &e.DvceSentTstamp }),
	"true_tstamp":         optTimeField(func(e *schema.AtomicEvent) **time.Time { return &e.TrueTstamp }),

	"v_tracker":    optStringField(func(e *schema.AtomicEvent) **string { return &e.VTracker }),
	"name_tracker": optStringField(func(e *schema.AtomicEvent) **string { return &e.NameTracker }),

	"user_ipaddress":    optStringField(func(e *schema.AtomicEvent) **string { return &e.UserIPAddress }),
	"user_id":           optStringField(func(e *schema.AtomicEvent) **string { return &e.UserID }),
	"session_id":        optStringField(func(e *schema.AtomicEvent) **string { return &e.SessionID }),
	"session_idx":       optIntField(func(e *schema.AtomicEvent) **int64 { return &e.SessionIdx }),
	"domain_userid":     optStringField(func(e *schema.AtomicEvent) **string { return &e.DomainUserID }),
	"domain_sessionid":  optStringField(func(e *schema.AtomicEvent) **string { return &e.DomainSessionID }),
	"domain_sessionidx": optIntField(func(e *schema.AtomicEvent) **int64 { return &e.DomainSessionIdx }),
	"network_userid":    optStringField(func(e *schema.AtomicEvent) **string { return &e.NetworkUserID }),
	"collector_auth":    optStringField(func(e *schema.AtomicEvent) **string { return &e.CollectorAuth }),

	"geo_country": optStringField(func(e *schema.AtomicEvent) **string { return &e.GeoCountry }),
	"geo_region":  optStringField(func(e *schema.AtomicEvent) **string { return &e.GeoRegion }),
	"geo_city":    optStringField(func(e *schema.AtomicEvent) **string { return &e.GeoCity }),

	"useragent": optStringField(func(e *schema.AtomicEvent) **string { return &e.Useragent }),
	"language":  optStringField(func(e *schema.AtomicEvent) **string { return &e.Language }),

	"category": optStringField(func(e *schema.AtomicEvent) **string { return &e.Category }),
	"action":   optStringField(func(e *schema.AtomicEvent) **string { return &e.Action }),
	"label":    optStringField(func(e *schema.AtomicEvent) **string { return &e.Label }),
	"property": optStringField(func(e *schema.AtomicEvent) **string { return &e.Property }),
	"value":    optStringField(func(e *schema.AtomicEvent) **string { return &e.Value }),
}
