// Package schema holds the atomic event model and the JSON schemas that ship
// with the pipeline.
package schema

import (
	"encoding/json"
	"time"
)

// SelfDescribingEvent is a schema-tagged event body.
type SelfDescribingEvent struct {
	Schema string         `json:"schema"`
	Data   map[string]any `json:"data"`
}

// SelfDescribingContext is a schema-tagged context attached to an event.
type SelfDescribingContext struct {
	Schema string         `json:"schema"`
	Data   map[string]any `json:"data"`
}

// AtomicEvent is the flattened output record of the enricher. Optional
// fields are pointers so absent and zero stay distinguishable in JSON.
type AtomicEvent struct {
	EventID string `json:"event_id"`

	// Application fields.
	CollectorHost string  `json:"collector_host"`
	Tenant        *string `json:"tenant,omitempty"`
	Identifier    *string `json:"identifier,omitempty"`
	Platform      string  `json:"platform"`

	// Event metadata.
	EventVendor  string `json:"event_vendor"`
	EventName    string `json:"event_name"`
	EventFormat  string `json:"event_format"`
	EventVersion string `json:"event_version"`

	// Date and time fields.
	Tstamp           time.Time  `json:"tstamp"`
	CollectorTstamp  time.Time  `json:"collector_tstamp"`
	DvceCreatedTstamp *time.Time `json:"dvce_created_tstamp,omitempty"`
	DvceSentTstamp   *time.Time `json:"dvce_sent_tstamp,omitempty"`
	TrueTstamp       *time.Time `json:"true_tstamp,omitempty"`
	EtlTstamp        time.Time  `json:"etl_tstamp"`

	// Versioning.
	VTracker    *string `json:"v_tracker,omitempty"`
	VCollector  string  `json:"v_collector"`
	VEtl        string  `json:"v_etl"`
	NameTracker *string `json:"name_tracker,omitempty"`

	// User.
	UserIPAddress    *string `json:"user_ipaddress,omitempty"`
	UserID           *string `json:"user_id,omitempty"`
	SessionID        *string `json:"session_id,omitempty"`
	SessionIdx       *int64  `json:"session_idx,omitempty"`
	DomainUserID     *string `json:"domain_userid,omitempty"`
	DomainSessionID  *string `json:"domain_sessionid,omitempty"`
	DomainSessionIdx *int64  `json:"domain_sessionidx,omitempty"`
	NetworkUserID    *string `json:"network_userid,omitempty"`
	CollectorAuth    *string `json:"collector_auth,omitempty"`

	// Location.
	GeoCountry *string `json:"geo_country,omitempty"`
	GeoRegion  *string `json:"geo_region,omitempty"`
	GeoCity    *string `json:"geo_city,omitempty"`

	// Common.
	Useragent *string `json:"useragent,omitempty"`
	Language  *string `json:"language,omitempty"`

	// Structured event flattening.
	Category *string `json:"category,omitempty"`
	Action   *string `json:"action,omitempty"`
	Label    *string `json:"label,omitempty"`
	Property *string `json:"property,omitempty"`
	Value    *string `json:"value,omitempty"`

	Contexts []SelfDescribingContext `json:"contexts"`
	Event    SelfDescribingEvent     `json:"event"`
}

// ToJSON renders the event the way the events lane carries it.
func (e *AtomicEvent) ToJSON() ([]byte, error) {
	if e.Contexts == nil {
		e.Contexts = []SelfDescribingContext{}
	}
	return json.Marshal(e)
}
