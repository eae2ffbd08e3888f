package enrich

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// PostProcessing runs after all extraction: it assigns a fresh event id when
// the tracker sent none, derives the canonical event time and stamps the
// processing time.
//
// The event time is true_tstamp when the tracker sent one; otherwise the
// collector time corrected by the device clock skew (sent minus created);
// otherwise the collector time as is.
type PostProcessing struct {
	Clock clock.Clock
}

func (PostProcessing) Name() string { return "postprocessing" }

func (p PostProcessing) Enrich(sp *Scratchpad) error {
	if !sp.IsSet("event_id") {
		if err := sp.SetValue("event_id", uuid.NewString()); err != nil {
			return err
		}
	}

	var tstamp time.Time
	switch {
	case sp.IsSet("true_tstamp"):
		tstamp, _ = sp.Get("true_tstamp").(time.Time)
	case sp.IsSet("dvce_created_tstamp") && sp.IsSet("dvce_sent_tstamp"):
		created, _ := sp.Get("dvce_created_tstamp").(time.Time)
		sent, _ := sp.Get("dvce_sent_tstamp").(time.Time)
		collector, _ := sp.Get("collector_tstamp").(time.Time)
		tstamp = collector.Add(-sent.Sub(created))
	default:
		tstamp, _ = sp.Get("collector_tstamp").(time.Time)
	}
	if err := sp.SetValue("tstamp", tstamp); err != nil {
		return err
	}

	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	if err := sp.SetValue("etl_tstamp", clk.Now().UTC()); err != nil {
		return err
	}

	if !sp.IsSet("platform") {
		return sp.SetValue("platform", "web")
	}
	return nil
}
