// Package version carries the build identity stamped into events.
package version

// Version is the pipeline release.
const Version = "0.1.0"

// CollectorName tags raw payloads with the producing collector.
const CollectorName = "datenstrom-go-" + Version
