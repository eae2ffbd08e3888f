package enrich

import (
	"github.com/ua-parser/uap-go/uaparser"

	"github.com/datenstrom/datenstrom/internal/schema"
)

// Device derives a device_info context from the user agent and the screen
// fields of the tracker payload.
type Device struct {
	parser *uaparser.Parser
}

// NewDevice builds the enrichment with the embedded uap-core rules.
func NewDevice() *Device {
	return &Device{parser: uaparser.NewFromSaved()}
}

func (*Device) Name() string { return "device" }

func (d *Device) Enrich(sp *Scratchpad) error {
	data := make(map[string]any)
	if sp.Has("res") {
		data["screen_resolution"] = sp.GetString("res")
	}
	if sp.Has("vp") {
		data["viewport_resolution"] = sp.GetString("vp")
	}
	if sp.Has("ua") {
		client := d.parser.Parse(sp.GetString("ua"))
		browser := client.UserAgent.Family
		os := client.Os.Family
		device := client.Device.Family
		if (browser != "" && browser != "Other") ||
			(os != "" && os != "Other") ||
			(device != "" && device != "Other") {
			data["browser_family"] = browser
			data["browser_version"] = client.UserAgent.Major
			data["os_family"] = os
			data["os_version"] = client.Os.Major
			data["device_family"] = device
		}
	}
	if len(data) == 0 {
		return nil
	}
	return sp.AddContext(schema.SelfDescribingContext{
		Schema: schema.DeviceInfoSchema,
		Data:   data,
	})
}
