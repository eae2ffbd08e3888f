package enrich

import (
	"github.com/datenstrom/datenstrom/internal/version"
)

// Enricher mutates the scratchpad of one tracker event. An error fails the
// whole raw payload; enrichers with optional upstreams swallow their own
// transient failures instead.
type Enricher interface {
	Name() string
	Enrich(sp *Scratchpad) error
}

// ProcessingInfo stamps collector provenance onto the event. It runs first
// so later enrichers can rely on collector_tstamp.
type ProcessingInfo struct{}

func (ProcessingInfo) Name() string { return "processing_info" }

func (ProcessingInfo) Enrich(sp *Scratchpad) error {
	if err := sp.SetValue("v_etl", version.Version); err != nil {
		return err
	}
	if err := sp.SetValue("v_collector", sp.Raw.Collector); err != nil {
		return err
	}
	if err := sp.SetValue("collector_tstamp", TstampFromMillis(sp.Raw.Timestamp)); err != nil {
		return err
	}
	return sp.SetValue("collector_host", sp.Raw.Hostname)
}
