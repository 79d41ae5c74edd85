// Package geo resolves IP addresses to coarse locations for the
// geolocation consistency check.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/opensurvey/kestrel/internal/domain"
)

// ErrUnresolvable indicates the IP could not be mapped to a location.
// Callers treat this as absence of evidence, not as risk.
var ErrUnresolvable = errors.New("ip address unresolvable")

// Resolver resolves an IP address to a coarse location.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (*domain.Location, error)
}

// StaticResolver maps IPs to locations through a fixed CIDR table.
// Suitable for Community-tier deployments that load a prefix dataset
// at startup; a remote geo service can replace it behind the same
// interface.
type StaticResolver struct {
	entries []staticEntry
}

type staticEntry struct {
	network  *net.IPNet
	location domain.Location
}

// NewStaticResolver builds a resolver from CIDR-to-location mappings.
func NewStaticResolver(table map[string]domain.Location) (*StaticResolver, error) {
	r := &StaticResolver{entries: make([]staticEntry, 0, len(table))}
	for cidr, loc := range table {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid cidr %q: %w", cidr, err)
		}
		r.entries = append(r.entries, staticEntry{network: network, location: loc})
	}
	return r, nil
}

// Resolve returns the location of the first matching prefix.
// Private and loopback addresses are unresolvable.
func (r *StaticResolver) Resolve(_ context.Context, ip string) (*domain.Location, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: %q is not a valid ip", ErrUnresolvable, ip)
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return nil, fmt.Errorf("%w: %s is not publicly routable", ErrUnresolvable, ip)
	}

	for _, e := range r.entries {
		if e.network.Contains(parsed) {
			loc := e.location
			return &loc, nil
		}
	}
	return nil, fmt.Errorf("%w: no prefix matches %s", ErrUnresolvable, ip)
}

// cacheScope is the tenant key for cached resolutions. Geolocation is
// not tenant data, so all tenants share one cache namespace.
const cacheScope = "geo"

// CachedResolver wraps another resolver with the shared cache layer so
// repeated lookups of the same IP skip the underlying resolution.
type CachedResolver struct {
	inner Resolver
	cache domain.Cache
	ttl   time.Duration
}

// NewCachedResolver creates a caching decorator around inner.
func NewCachedResolver(inner Resolver, cache domain.Cache, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedResolver{inner: inner, cache: cache, ttl: ttl}
}

func (r *CachedResolver) Resolve(ctx context.Context, ip string) (*domain.Location, error) {
	if loc, err := r.cache.GetLocation(ctx, cacheScope, ip); err == nil && loc != nil {
		return loc, nil
	}

	loc, err := r.inner.Resolve(ctx, ip)
	if err != nil {
		return nil, err
	}

	// Cache write failures are not resolution failures.
	_ = r.cache.SetLocation(ctx, cacheScope, ip, loc, r.ttl)
	return loc, nil
}

// LoadTable parses a JSON CIDR-to-location table, the format shipped
// with deployment datasets: {"203.0.113.0/24": {"country": "US"}}.
func LoadTable(data []byte) (map[string]domain.Location, error) {
	var table map[string]domain.Location
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse geo table: %w", err)
	}
	return table, nil
}
