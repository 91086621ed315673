// Package geo resolves client IPs to coarse locations for audit records.
package geo

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"time"

	"github.com/maypok86/otter"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by providers that have no data for an address.
var ErrNotFound = errors.New("geo: location not found")

// Location fields are nil when unknown.
type Location struct {
	Country     *string
	CountryCode *string
	City        *string
	Lat         *float64
	Lon         *float64
}

// IsEmpty reports whether no field was resolved.
func (l Location) IsEmpty() bool {
	return l.Country == nil && l.CountryCode == nil && l.City == nil && l.Lat == nil && l.Lon == nil
}

// LocalNetwork is returned for private, loopback and link-local addresses.
func LocalNetwork() Location {
	return Location{
		Country:     strPtr("Local Network"),
		CountryCode: strPtr("LAN"),
		City:        strPtr("Local"),
	}
}

// Provider looks up a public address.
type Provider interface {
	Lookup(ctx context.Context, ip netip.Addr) (Location, error)
}

type Enricher struct {
	provider Provider
	cache    otter.Cache[netip.Addr, Location]
	timeout  time.Duration
	log      *logrus.Entry
}

type EnricherConfig struct {
	Provider  Provider
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

func NewEnricher(logger *logrus.Logger, cfg EnricherConfig) *Enricher {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	cache, err := otter.MustBuilder[netip.Addr, Location](cfg.CacheSize).
		WithTTL(cfg.CacheTTL).
		Build()
	if err != nil {
		panic("geo: failed to create location cache: " + err.Error())
	}

	return &Enricher{
		provider: cfg.Provider,
		cache:    cache,
		timeout:  cfg.Timeout,
		log:      logger.WithField("component", "geo_enricher"),
	}
}

// Resolve never fails: any lookup problem yields an empty Location.
func (e *Enricher) Resolve(ctx context.Context, ip string) Location {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		e.log.WithField("ip", ip).Debug("Unparseable client address, skipping geolocation")
		return Location{}
	}
	addr = addr.Unmap()

	if IsLocal(addr) {
		return LocalNetwork()
	}
	if e.provider == nil {
		return Location{}
	}

	if loc, ok := e.cache.Get(addr); ok {
		return loc
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	loc, err := e.provider.Lookup(ctx, addr)
	if err != nil {
		e.log.WithFields(logrus.Fields{"ip": addr.String(), "error": err}).Warn("Geolocation lookup failed")
		return Location{}
	}

	e.cache.Set(addr, loc)
	return loc
}

func (e *Enricher) Close() {
	e.cache.Close()
}

// IsLocal covers RFC 1918, loopback, link-local, IPv6 unique-local and unspecified addresses.
func IsLocal(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
