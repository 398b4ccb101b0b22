package location

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"
)

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// GeoIPDevice derives a coarse fix from a GeoLite2 City database. It is
// meant for hosts without a GPS, where the public IP is the best signal.
type GeoIPDevice struct {
	db       cityReader
	ip       net.IP
	interval time.Duration
	now      func() time.Time
}

// OpenGeoIPDevice opens the database at path and resolves ip on every fix.
// interval paces Watch; zero uses one minute.
func OpenGeoIPDevice(path, ip string, interval time.Duration) (*GeoIPDevice, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid geoip address %q", ip)
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return newGeoIPDevice(db, parsed, interval), nil
}

func newGeoIPDevice(db cityReader, ip net.IP, interval time.Duration) *GeoIPDevice {
	if interval <= 0 {
		interval = time.Minute
	}
	return &GeoIPDevice{db: db, ip: ip, interval: interval, now: time.Now}
}

// RequestPermission always grants; no device permission is involved.
func (d *GeoIPDevice) RequestPermission(ctx context.Context) (PermissionStatus, error) {
	return PermissionGranted, nil
}

func (d *GeoIPDevice) CurrentFix(ctx context.Context, accuracy Accuracy) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	record, err := d.db.City(d.ip)
	if err != nil {
		return Fix{}, fmt.Errorf("geoip lookup failed: %w", err)
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return Fix{}, ErrNoFix
	}
	return Fix{
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
		Accuracy:  float64(record.Location.AccuracyRadius) * 1000,
		Timestamp: d.now(),
	}, nil
}

// Watch polls the database every interval.
func (d *GeoIPDevice) Watch(ctx context.Context) (<-chan Fix, error) {
	ch := make(chan Fix, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			if fix, err := d.CurrentFix(ctx, AccuracyLow); err == nil {
				select {
				case ch <- fix:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close releases the database.
func (d *GeoIPDevice) Close() error {
	return d.db.Close()
}
