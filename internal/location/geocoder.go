package location

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Address holds the components used to build a display address.
type Address struct {
	Street string `json:"street" yaml:"street"`
	City   string `json:"city" yaml:"city"`
	Region string `json:"region" yaml:"region"`
}

// Format renders "<street> <city>, <region>" with outer spaces trimmed.
func (a *Address) Format() string {
	if a == nil {
		return NotAvailable
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s, %s", a.Street, a.City, a.Region))
}

// Geocoder resolves coordinates to an address. A nil address with a nil
// error means nothing was found.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*Address, error)
}

// StaticGeocoder returns the same address for every coordinate.
type StaticGeocoder struct {
	Address *Address
}

func (g StaticGeocoder) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	return g.Address, nil
}

// CachedGeocoder memoizes found addresses per coordinate cell
// (4 decimal places, roughly 11 m).
type CachedGeocoder struct {
	inner Geocoder
	cache *gocache.Cache
}

// NewCachedGeocoder wraps inner with an in-memory cache holding entries for ttl.
func NewCachedGeocoder(inner Geocoder, ttl time.Duration) *CachedGeocoder {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedGeocoder{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (g *CachedGeocoder) Reverse(ctx context.Context, lat, lon float64) (*Address, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if v, ok := g.cache.Get(key); ok {
		addr := v.(Address)
		return &addr, nil
	}

	addr, err := g.inner.Reverse(ctx, lat, lon)
	if err != nil || addr == nil {
		return addr, err
	}
	g.cache.SetDefault(key, *addr)
	return addr, nil
}

// Len reports the number of cached cells.
func (g *CachedGeocoder) Len() int {
	return g.cache.ItemCount()
}
