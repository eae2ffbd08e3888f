package enrich

import (
	"net/url"

	"github.com/datenstrom/datenstrom/internal/schema"
)

// clickIDNetworks maps ad-network click id query parameters to network
// names.
var clickIDNetworks = []struct {
	param   string
	network string
}{
	{"gclid", "google"},
	{"msclkid", "bing"},
	{"fbclid", "facebook"},
	{"dclid", "doubleclick"},
}

// Campaign derives a campaign_attribution context from the utm_* parameters
// and ad-network click ids on the page URL.
type Campaign struct{}

func (Campaign) Name() string { return "campaign" }

func (Campaign) Enrich(sp *Scratchpad) error {
	if !sp.Has("page_url") {
		return nil
	}
	parsed, err := url.Parse(sp.GetString("page_url"))
	if err != nil || parsed.RawQuery == "" {
		return nil
	}
	query := parsed.Query()
	if len(query) == 0 {
		return nil
	}

	data := make(map[string]any)
	for param, field := range map[string]string{
		"utm_campaign": "campaign",
		"utm_source":   "source",
		"utm_medium":   "medium",
		"utm_term":     "term",
		"utm_content":  "content",
	} {
		if v := query.Get(param); v != "" {
			data[field] = v
		}
	}
	for _, c := range clickIDNetworks {
		if v := query.Get(c.param); v != "" {
			data["network"] = c.network
			data["click_id"] = v
			break
		}
	}
	if len(data) == 0 {
		return nil
	}
	return sp.AddContext(schema.SelfDescribingContext{
		Schema: schema.CampaignAttributionSchema,
		Data:   data,
	})
}
