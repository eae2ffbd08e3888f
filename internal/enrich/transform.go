package enrich

// The transformation tables map the Snowplow tracker protocol short keys to
// atomic fields and types. They follow the canonical Snowplow enrich
// Transform tables so existing trackers keep working.

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/datenstrom/datenstrom/internal/fault"
)

type transformFunc func(string) (any, error)

type transformation struct {
	field string
	fn    transformFunc
}

// TransformIP keeps the first address of a comma-separated list and strips
// stray brackets.
func TransformIP(value string) (any, error) {
	if strings.Contains(value, ",") {
		slog.Warn("multiple ip addresses in tracker field", "value", value)
		value = strings.SplitN(value, ",", 2)[0]
		value = strings.NewReplacer("[", "", "]", "", ",", "").Replace(value)
	}
	return value, nil
}

func transformString(value string) (any, error) {
	return value, nil
}

func transformInt(value string) (any, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return n, nil
}

func transformFloat(value string) (any, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", value)
	}
	return f, nil
}

func transformTstamp(value string) (any, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q", value)
	}
	return TstampFromMillis(ms), nil
}

// TstampFromMillis converts a tracker epoch-milliseconds value to UTC time.
func TstampFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// atomicTransformations maps tracker keys to typed atomic fields.
var atomicTransformations = map[string]transformation{
	// Metadata.
	"eid": {"event_id", transformString},

	// Application fields.
	"aid": {"identifier", transformString},
	"p":   {"platform", transformString},

	// Date and time fields.
	"dtm": {"dvce_created_tstamp", transformTstamp},
	"ttm": {"true_tstamp", transformTstamp},
	"stm": {"dvce_sent_tstamp", transformTstamp},

	// Versioning.
	"tv":  {"v_tracker", transformString},
	"cv":  {"v_collector", transformString},
	"tna": {"name_tracker", transformString},

	// User.
	"ip":   {"user_ipaddress", TransformIP},
	"uid":  {"user_id", transformString},
	"duid": {"domain_userid", transformString},
	"vid":  {"domain_sessionidx", transformInt},
	"sid":  {"domain_sessionid", transformString},
	"nuid": {"network_userid", transformString},

	// Common.
	"ua":   {"useragent", transformString},
	"lang": {"language", transformString},
}

// Event-specific tables; these write into the temp data only, feeding the
// self-describing event body.
var (
	pageViewTransformations = map[string]transformation{
		"refr": {"page_referrer", transformString},
		"url":  {"page_url", transformString},
		"page": {"page_title", transformString},
	}

	pagePingTransformations = map[string]transformation{
		"pp_mix": {"pp_xoffset_min", transformInt},
		"pp_max": {"pp_xoffset_max", transformInt},
		"pp_miy": {"pp_yoffset_min", transformInt},
		"pp_may": {"pp_yoffset_max", transformInt},
	}

	structuredEventTransformations = map[string]transformation{
		"se_ca": {"category", transformString},
		"se_ac": {"action", transformString},
		"se_la": {"label", transformString},
		"se_pr": {"property", transformString},
		"se_va": {"value", transformString},
	}

	transactionTransformations = map[string]transformation{
		"tid":   {"txn_id", transformString},
		"tr_id": {"tr_orderid", transformString},
		"tr_af": {"tr_affiliation", transformString},
		"tr_tt": {"tr_total", transformFloat},
		"tr_tx": {"tr_tax", transformFloat},
		"tr_sh": {"tr_shipping", transformFloat},
		"tr_ci": {"tr_city", transformString},
		"tr_st": {"tr_state", transformString},
		"tr_co": {"tr_country", transformString},
		"tr_cu": {"tr_currency", transformString},
	}

	transactionItemTransformations = map[string]transformation{
		"ti_id": {"ti_orderid", transformString},
		"ti_sk": {"ti_sku", transformString},
		"ti_na": {"ti_name", transformString},
		"ti_nm": {"ti_name", transformString},
		"ti_ca": {"ti_category", transformString},
		"ti_pr": {"ti_price", transformFloat},
		"ti_qu": {"ti_quantity", transformInt},
		"ti_cu": {"ti_currency", transformString},
	}
)

// runTempTransformations applies an event-specific table, writing the typed
// values into the temp data only.
func runTempTransformations(sp *Scratchpad, table map[string]transformation) error {
	for key, tr := range table {
		value, ok := sp.Temp[key]
		if !ok || value == nil {
			continue
		}
		typed, err := tr.fn(sp.GetString(key))
		if err != nil {
			return fault.Errorf(fault.MalformedInput, "tracker field %s: %v", key, err)
		}
		sp.Temp[tr.field] = typed
	}
	return nil
}

// Transform applies the shared tracker-protocol table, writing typed values
// into the atomic fields.
type Transform struct{}

func (Transform) Name() string { return "transform" }

func (Transform) Enrich(sp *Scratchpad) error {
	for key, tr := range atomicTransformations {
		value, ok := sp.Temp[key]
		if !ok || value == nil {
			continue
		}
		typed, err := tr.fn(sp.GetString(key))
		if err != nil {
			return fault.Errorf(fault.MalformedInput, "tracker field %s: %v", key, err)
		}
		if err := sp.SetValue(tr.field, typed); err != nil {
			return err
		}
	}
	return nil
}
