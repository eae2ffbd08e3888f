package enrich

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/oschwald/geoip2-golang"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/fault"
)

// GeoIP annotates events with country, region and city from a MaxMind City
// database. Addresses the database does not know are left unannotated.
type GeoIP struct {
	reader *geoip2.Reader
}

// NewGeoIP opens the configured database, downloading it first when the
// file is missing and downloads are enabled.
func NewGeoIP(cfg *config.Config) (*GeoIP, error) {
	dbFile := filepath.Join(cfg.AssetDir, cfg.GeoipDBFile)
	if _, err := os.Stat(dbFile); err != nil {
		if !cfg.DownloadGeoipDB || cfg.GeoipDBURL == "" {
			return nil, fault.Errorf(fault.Fatal,
				"geoip database not found at %s and download is disabled", dbFile)
		}
		if err := downloadFile(cfg.GeoipDBURL, dbFile); err != nil {
			return nil, err
		}
	}
	reader, err := geoip2.Open(dbFile)
	if err != nil {
		return nil, fault.Wrap(fault.Fatal, err, "opening geoip database")
	}
	return &GeoIP{reader: reader}, nil
}

// Close releases the database handle.
func (g *GeoIP) Close() error { return g.reader.Close() }

func (*GeoIP) Name() string { return "geoip" }

func (g *GeoIP) Enrich(sp *Scratchpad) error {
	if !sp.Has("user_ipaddress") {
		return nil
	}
	ip := net.ParseIP(sp.GetString("user_ipaddress"))
	if ip == nil {
		return nil
	}
	city, err := g.reader.City(ip)
	if err != nil || city == nil {
		return nil
	}
	if city.Country.IsoCode == "" && city.City.Names["en"] == "" && len(city.Subdivisions) == 0 {
		return nil
	}
	if err := sp.SetValue("geo_country", city.Country.IsoCode); err != nil {
		return err
	}
	region := ""
	if len(city.Subdivisions) > 0 {
		region = city.Subdivisions[len(city.Subdivisions)-1].IsoCode
	}
	if err := sp.SetValue("geo_region", region); err != nil {
		return err
	}
	return sp.SetValue("geo_city", city.City.Names["en"])
}

func downloadFile(url, localFile string) error {
	slog.Info("downloading geoip database", "url", url, "file", localFile)
	if err := os.MkdirAll(filepath.Dir(localFile), 0o755); err != nil {
		return fault.Wrap(fault.Fatal, err, "creating asset directory")
	}
	resp, err := http.Get(url)
	if err != nil {
		return fault.Wrap(fault.Fatal, err, "downloading geoip database")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fault.Errorf(fault.Fatal, "geoip download returned %d", resp.StatusCode)
	}
	f, err := os.Create(localFile)
	if err != nil {
		return fault.Wrap(fault.Fatal, err, "creating geoip database file")
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return fault.Wrap(fault.Fatal, err, "writing geoip database file")
	}
	return nil
}
