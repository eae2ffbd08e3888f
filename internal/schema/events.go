package schema

// Iglu references the enricher assigns to tracker event codes.
const (
	PageViewSchema        = "iglu:io.datenstrom/page_view/jsonschema/1-0-0"
	PagePingSchema        = "iglu:io.datenstrom/page_ping/jsonschema/1-0-0"
	StructuredEventSchema = "iglu:io.datenstrom/structured_event/jsonschema/1-0-0"
	TransactionSchema     = "iglu:io.datenstrom/transaction/jsonschema/1-0-0"
	TransactionItemSchema = "iglu:io.datenstrom/transaction_item/jsonschema/1-0-0"

	CampaignAttributionSchema = "iglu:io.datenstrom/campaign_attribution/jsonschema/1-0-0"
	DeviceInfoSchema          = "iglu:io.datenstrom/device_info/jsonschema/1-0-0"
	AtomicSchema              = "iglu:io.datenstrom/atomic/jsonschema/1-0-0"

	// PayloadDataSchemaPrefix identifies any version of the multi-event
	// tracker payload body.
	PayloadDataSchemaPrefix = "iglu:com.snowplowanalytics.snowplow/payload_data/jsonschema/1"
)

// payloadDataSchema accepts the tracker protocol short keys. All values are
// strings on the wire; typing happens in the transform step.
const payloadDataSchema = `{
  "$schema": "http://iglucentral.com/schemas/com.snowplowanalytics.self-desc/schema/jsonschema/1-0-0#",
  "description": "Schema for a Snowplow payload",
  "self": {
    "vendor": "com.snowplowanalytics.snowplow",
    "name": "payload_data",
    "format": "jsonschema",
    "version": "1-0-4"
  },
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "tna": {"type": "string"}, "aid": {"type": "string"},
      "p": {"type": "string"}, "dtm": {"type": "string"},
      "tz": {"type": "string"}, "e": {"type": "string"},
      "tid": {"type": "string"}, "eid": {"type": "string"},
      "tv": {"type": "string"}, "duid": {"type": "string"},
      "nuid": {"type": "string"}, "uid": {"type": "string"},
      "vid": {"type": "string"}, "ip": {"type": "string"},
      "res": {"type": "string"}, "url": {"type": "string"},
      "page": {"type": "string"}, "refr": {"type": "string"},
      "fp": {"type": "string"}, "ctype": {"type": "string"},
      "cookie": {"type": "string"}, "lang": {"type": "string"},
      "f_pdf": {"type": "string"}, "f_qt": {"type": "string"},
      "f_realp": {"type": "string"}, "f_wma": {"type": "string"},
      "f_dir": {"type": "string"}, "f_fla": {"type": "string"},
      "f_java": {"type": "string"}, "f_gears": {"type": "string"},
      "f_ag": {"type": "string"}, "cd": {"type": "string"},
      "ds": {"type": "string"}, "cs": {"type": "string"},
      "vp": {"type": "string"}, "mac": {"type": "string"},
      "pp_mix": {"type": "string"}, "pp_max": {"type": "string"},
      "pp_miy": {"type": "string"}, "pp_may": {"type": "string"},
      "ad_ba": {"type": "string"}, "ad_ca": {"type": "string"},
      "ad_ad": {"type": "string"}, "ad_uid": {"type": "string"},
      "tr_id": {"type": "string"}, "tr_af": {"type": "string"},
      "tr_tt": {"type": "string"}, "tr_tx": {"type": "string"},
      "tr_sh": {"type": "string"}, "tr_ci": {"type": "string"},
      "tr_st": {"type": "string"}, "tr_co": {"type": "string"},
      "tr_cu": {"type": "string"}, "ti_id": {"type": "string"},
      "ti_sk": {"type": "string"}, "ti_nm": {"type": "string"},
      "ti_na": {"type": "string"}, "ti_ca": {"type": "string"},
      "ti_pr": {"type": "string"}, "ti_qu": {"type": "string"},
      "ti_cu": {"type": "string"}, "sa": {"type": "string"},
      "sn": {"type": "string"}, "st": {"type": "string"},
      "sp": {"type": "string"}, "se_ca": {"type": "string"},
      "se_ac": {"type": "string"}, "se_la": {"type": "string"},
      "se_pr": {"type": "string"}, "se_va": {"type": "string"},
      "ue_na": {"type": "string"}, "ue_pr": {"type": "string"},
      "ue_px": {"type": "string"}, "co": {"type": "string"},
      "cx": {"type": "string"}, "ua": {"type": "string"},
      "tnuid": {"type": "string"}, "stm": {"type": "string"},
      "sid": {"type": "string"}, "ttm": {"type": "string"}
    },
    "required": ["tv", "p", "e"],
    "additionalProperties": false
  },
  "minItems": 1
}`

const contextsSchema = `{
  "$schema": "http://iglucentral.com/schemas/com.snowplowanalytics.self-desc/schema/jsonschema/1-0-0#",
  "description": "Schema for custom contexts",
  "self": {
    "vendor": "com.snowplowanalytics.snowplow",
    "name": "contexts",
    "format": "jsonschema",
    "version": "1-0-1"
  },
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "schema": {
        "type": "string",
        "pattern": "^iglu:[a-zA-Z0-9-_.]+/[a-zA-Z0-9-_]+/[a-zA-Z0-9-_]+/[0-9]+-[0-9]+-[0-9]+$"
      },
      "data": {}
    },
    "required": ["schema", "data"],
    "additionalProperties": false
  }
}`

const unstructEventSchema = `{
  "$schema": "http://iglucentral.com/schemas/com.snowplowanalytics.self-desc/schema/jsonschema/1-0-0#",
  "description": "Schema for a Snowplow unstructured event",
  "self": {
    "vendor": "com.snowplowanalytics.snowplow",
    "name": "unstruct_event",
    "format": "jsonschema",
    "version": "1-0-0"
  },
  "type": "object",
  "properties": {
    "schema": {
      "type": "string",
      "pattern": "^iglu:[a-zA-Z0-9-_.]+/[a-zA-Z0-9-_]+/[a-zA-Z0-9-_]+/[0-9]+-[0-9]+-[0-9]+$"
    },
    "data": {}
  },
  "required": ["schema", "data"],
  "additionalProperties": false
}`

const pageViewSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "description": "Schema for a page view",
  "self": {
    "vendor": "io.datenstrom",
    "name": "page_view",
    "format": "jsonschema",
    "version": "1-0-0"
  },
  "type": "object",
  "properties": {
    "page_url": {"type": ["string", "null"], "maxLength": 4096},
    "page_title": {"type": ["string", "null"], "maxLength": 2048},
    "page_referrer": {"type": ["string", "null"], "maxLength": 4096}
  },
  "required": ["page_url"]
}`

const pagePingSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "description": "Schema for a page ping",
  "self": {
    "vendor": "io.datenstrom",
    "name": "page_ping",
    "format": "jsonschema",
    "version": "1-0-0"
  },
  "type": "object",
  "properties": {
    "pp_xoffset_min": {"type": ["integer", "null"]},
    "pp_xoffset_max": {"type": ["integer", "null"]},
    "pp_yoffset_min": {"type": ["integer", "null"]},
    "pp_yoffset_max": {"type": ["integer", "null"]}
  }
}`

const structuredEventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "description": "Schema for a structured event",
  "self": {
    "vendor": "io.datenstrom",
    "name": "structured_event",
    "format": "jsonschema",
    "version": "1-0-0"
  },
  "type": "object",
  "properties": {
    "category": {"type": "string", "maxLength": 1024},
    "action": {"type": "string", "maxLength": 1024},
    "label": {"type": ["string", "null"], "maxLength": 1024},
    "property": {"type": ["string", "null"], "maxLength": 1024},
    "value": {"type": ["string", "null"], "maxLength": 1024}
  },
  "required": ["category", "action"]
}`

const transactionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "description": "Schema for an ecommerce transaction",
  "self": {
    "vendor": "io.datenstrom",
    "name": "transaction",
    "format": "jsonschema",
    "version": "1-0-0"
  },
  "type": "object",
  "properties": {
    "txn_id": {"type": ["string", "null"]},
    "tr_orderid": {"type": "string"},
    "tr_affiliation": {"type": ["string", "null"]},
    "tr_total": {"type": "number"},
    "tr_tax": {"type": ["number", "null"]},
    "tr_shipping": {"type": ["number", "null"]},
    "tr_city": {"type": ["string", "null"]},
    "tr_state": {"type": ["string", "null"]},
    "tr_country": {"type": ["string", "null"]},
    "tr_currency": {"type": ["string", "null"]}
  },
  "required": ["tr_orderid", "tr_total"]
}`

const transactionItemSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "description": "Schema for an ecommerce transaction item",
  "self": {
    "vendor": "io.datenstrom",
    "name": "transaction_item",
    "format": "jsonschema",
    "version": "1-0-0"
  },
  "type": "object",
  "properties": {
    "ti_orderid": {"type": "string"},
    "ti_sku": {"type": "string"},
    "ti_name": {"type": ["string", "null"]},
    "ti_category": {"type": ["string", "null"]},
    "ti_price": {"type": "number"},
    "ti_quantity": {"type": "integer"},
    "ti_currency": {"type": ["string", "null"]}
  },
  "required": ["ti_orderid", "ti_sku", "ti_price", "ti_quantity"]
}`

const campaignAttributionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "description": "Schema for marketing campaign attribution",
  "self": {
    "vendor": "io.datenstrom",
    "name": "campaign_attribution",
    "format": "jsonschema",
    "version": "1-0-0"
  },
  "type": "object",
  "properties": {
    "campaign": {"type": ["string", "null"]},
    "source": {"type": ["string", "null"]},
    "medium": {"type": ["string", "null"]},
    "term": {"type": ["string", "null"]},
    "content": {"type": ["string", "null"]},
    "network": {"type": ["string", "null"]},
    "click_id": {"type": ["string", "null"]}
  }
}`

const deviceInfoSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "description": "Schema for device and user agent information",
  "self": {
    "vendor": "io.datenstrom",
    "name": "device_info",
    "format": "jsonschema",
    "version": "1-0-0"
  },
  "type": "object",
  "properties": {
    "screen_resolution": {"type": ["string", "null"]},
    "viewport_resolution": {"type": ["string", "null"]},
    "browser_family": {"type": ["string", "null"]},
    "browser_version": {"type": ["string", "null"]},
    "os_family": {"type": ["string", "null"]},
    "os_version": {"type": ["string", "null"]},
    "device_family": {"type": ["string", "null"]}
  }
}`

// atomicSchema mirrors AtomicEvent for downstream consumers that validate
// the events lane.
const atomicSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "description": "Schema for a flattened atomic event",
  "self": {
    "vendor": "io.datenstrom",
    "name": "atomic",
    "format": "jsonschema",
    "version": "1-0-0"
  },
  "type": "object",
  "properties": {
    "event_id": {"type": "string"},
    "collector_host": {"type": "string"},
    "tenant": {"type": ["string", "null"]},
    "identifier": {"type": ["string", "null"]},
    "platform": {"type": "string"},
    "event_vendor": {"type": "string"},
    "event_name": {"type": "string"},
    "event_format": {"type": "string"},
    "event_version": {"type": "string"},
    "tstamp": {"type": "string", "format": "date-time"},
    "collector_tstamp": {"type": "string", "format": "date-time"},
    "dvce_created_tstamp": {"type": ["string", "null"], "format": "date-time"},
    "dvce_sent_tstamp": {"type": ["string", "null"], "format": "date-time"},
    "true_tstamp": {"type": ["string", "null"], "format": "date-time"},
    "etl_tstamp": {"type": "string", "format": "date-time"},
    "v_tracker": {"type": ["string", "null"]},
    "v_collector": {"type": "string"},
    "v_etl": {"type": "string"},
    "name_tracker": {"type": ["string", "null"]},
    "user_ipaddress": {"type": ["string", "null"]},
    "user_id": {"type": ["string", "null"]},
    "session_id": {"type": ["string", "null"]},
    "session_idx": {"type": ["integer", "null"]},
    "domain_userid": {"type": ["string", "null"]},
    "domain_sessionid": {"type": ["string", "null"]},
    "domain_sessionidx": {"type": ["integer", "null"]},
    "network_userid": {"type": ["string", "null"]},
    "collector_auth": {"type": ["string", "null"]},
    "geo_country": {"type": ["string", "null"]},
    "geo_region": {"type": ["string", "null"]},
    "geo_city": {"type": ["string", "null"]},
    "useragent": {"type": ["string", "null"]},
    "language": {"type": ["string", "null"]},
    "category": {"type": ["string", "null"]},
    "action": {"type": ["string", "null"]},
    "label": {"type": ["string", "null"]},
    "property": {"type": ["string", "null"]},
    "value": {"type": ["string", "null"]},
    "contexts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {"schema": {"type": "string"}, "data": {"type": "object"}},
        "required": ["schema", "data"]
      }
    },
    "event": {
      "type": "object",
      "properties": {"schema": {"type": "string"}, "data": {"type": "object"}},
      "required": ["schema", "data"]
    }
  },
  "required": ["event_id", "collector_host", "platform", "event_vendor",
    "event_name", "event_format", "event_version", "tstamp",
    "collector_tstamp", "etl_tstamp", "v_collector", "v_etl", "event"]
}`

// Static maps registry paths to the schemas that ship with the binary.
// payload_data versions 1-0-0 through 1-0-4 share one layout.
var Static = map[string]string{
	"com.snowplowanalytics.snowplow/payload_data/jsonschema/1-0-0": payloadDataSchema,
	"com.snowplowanalytics.snowplow/payload_data/jsonschema/1-0-1": payloadDataSchema,
	"com.snowplowanalytics.snowplow/payload_data/jsonschema/1-0-2": payloadDataSchema,
	"com.snowplowanalytics.snowplow/payload_data/jsonschema/1-0-3": payloadDataSchema,
	"com.snowplowanalytics.snowplow/payload_data/jsonschema/1-0-4": payloadDataSchema,

	"com.snowplowanalytics.snowplow/unstruct_event/jsonschema/1-0-0": unstructEventSchema,
	"com.snowplowanalytics.snowplow/contexts/jsonschema/1-0-0":       contextsSchema,
	"com.snowplowanalytics.snowplow/contexts/jsonschema/1-0-1":       contextsSchema,

	"io.datenstrom/page_view/jsonschema/1-0-0":            pageViewSchema,
	"io.datenstrom/page_ping/jsonschema/1-0-0":            pagePingSchema,
	"io.datenstrom/page_ping/jsonschema/1-0-1":            pagePingSchema,
	"io.datenstrom/structured_event/jsonschema/1-0-0":     structuredEventSchema,
	"io.datenstrom/transaction/jsonschema/1-0-0":          transactionSchema,
	"io.datenstrom/transaction_item/jsonschema/1-0-0":     transactionItemSchema,
	"io.datenstrom/campaign_attribution/jsonschema/1-0-0": campaignAttributionSchema,
	"io.datenstrom/device_info/jsonschema/1-0-0":          deviceInfoSchema,
	"io.datenstrom/atomic/jsonschema/1-0-0":               atomicSchema,
}
