package geo

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/oschwald/maxminddb-golang"
)

// MMDBProvider answers lookups from a local GeoLite2/GeoIP2 City database.
type MMDBProvider struct {
	reader *maxminddb.Reader
}

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  *float64 `maxminddb:"latitude"`
		Longitude *float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

func OpenMMDB(path string) (*MMDBProvider, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open mmdb %s: %w", path, err)
	}
	return &MMDBProvider{reader: reader}, nil
}

func (p *MMDBProvider) Lookup(_ context.Context, ip netip.Addr) (Location, error) {
	var rec cityRecord
	if err := p.reader.Lookup(net.IP(ip.AsSlice()), &rec); err != nil {
		return Location{}, fmt.Errorf("geo: mmdb lookup: %w", err)
	}
	if rec.Country.ISOCode == "" && len(rec.Country.Names) == 0 && rec.Location.Latitude == nil {
		return Location{}, ErrNotFound
	}

	return Location{
		Country:     strPtr(rec.Country.Names["en"]),
		CountryCode: strPtr(rec.Country.ISOCode),
		City:        strPtr(rec.City.Names["en"]),
		Lat:         rec.Location.Latitude,
		Lon:         rec.Location.Longitude,
	}, nil
}

func (p *MMDBProvider) Close() error {
	return p.reader.Close()
}
