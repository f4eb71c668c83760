// Package location tracks a user's most recent position fix and resolves
// whether a query needs one, with a short-lived cache so repeated queries in
// quick succession don't force a fresh device round trip.
package location

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/hardware"
	"github.com/snarg/session-engine/internal/wakeword"
)

// DefaultTTL is how long a cached fix is considered fresh enough to reuse.
const DefaultTTL = 5 * time.Minute

// Fix is a resolved position, in whatever unit the device supplied. Geocoded
// is empty until a query that needs it causes a Geocoder lookup to succeed.
type Fix struct {
	Lat, Lng  float64
	Accuracy  float64
	Geocoded  string
	FetchedAt time.Time
}

// Geocoder resolves a raw coordinate to a human-readable place name. The
// Manager only ever sees this interface; the concrete service lives behind
// it (see NominatimGeocoder).
type Geocoder interface {
	Geocode(ctx context.Context, lat, lng float64) (string, error)
}

// Manager caches the last known fix for a user and classifies whether a
// query needs location/geocoding context.
type Manager struct {
	mu       sync.Mutex
	ttl      time.Duration
	log      zerolog.Logger
	geocoder Geocoder

	fix      Fix
	haveFix  bool
	settings hardware.Settings
}

// Options configures a new Manager.
type Options struct {
	TTL      time.Duration // defaults to DefaultTTL
	Geocoder Geocoder      // optional; nil leaves queries needing geocoding with raw coordinates
	Log      zerolog.Logger
}

// New constructs a Manager with no cached fix.
func New(opts Options) *Manager {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{ttl: ttl, geocoder: opts.Geocoder, log: opts.Log.With().Str("component", "location").Logger()}
}

// OnLocation should be wired to the hardware session's location callback; it
// updates the cached fix whenever the device pushes one unprompted.
func (m *Manager) OnLocation(ev hardware.LocationEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fix = Fix{Lat: ev.Lat, Lng: ev.Lng, Accuracy: ev.Accuracy, FetchedAt: ev.FetchedAt}
	m.haveFix = true
}

// OnSettingsChange should be wired to the hardware session's settings
// callback, keeping the timezone fallback current.
func (m *Manager) OnSettingsChange(s hardware.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

// Resolve returns the best available fix for query, refreshing from the
// device if the cached fix is stale or absent and a session is available,
// then resolving a place name via the configured Geocoder if query needs
// one and the fix doesn't already carry one. ok is false only when no fix
// could be obtained at all. Callers are expected to have already checked
// NeedsLocation(query) before calling Resolve.
func (m *Manager) Resolve(ctx context.Context, sess hardware.Session, query string) (Fix, bool) {
	m.mu.Lock()
	cached := m.fix
	fresh := m.haveFix && time.Since(cached.FetchedAt) < m.ttl
	m.mu.Unlock()

	fix, ok := cached, fresh
	if !fresh && sess != nil {
		if ev, err := sess.RequestLocation(ctx); err != nil {
			m.log.Debug().Err(err).Msg("location refresh failed, falling back to cache")
		} else {
			fix = Fix{Lat: ev.Lat, Lng: ev.Lng, Accuracy: ev.Accuracy, FetchedAt: ev.FetchedAt}
			ok = true
			m.mu.Lock()
			m.fix = fix
			m.haveFix = true
			m.mu.Unlock()
		}
	}
	if !ok {
		m.mu.Lock()
		fix, ok = m.fix, m.haveFix
		m.mu.Unlock()
	}
	if !ok {
		return Fix{}, false
	}

	if fix.Geocoded == "" && NeedsGeocoding(query) && m.geocoder != nil {
		if name, err := m.geocoder.Geocode(ctx, fix.Lat, fix.Lng); err != nil {
			m.log.Debug().Err(err).Msg("geocoding failed, proceeding with raw coordinates")
		} else {
			fix.Geocoded = name
			m.mu.Lock()
			if m.haveFix && m.fix.FetchedAt.Equal(fix.FetchedAt) {
				m.fix.Geocoded = name
			}
			m.mu.Unlock()
		}
	}
	return fix, true
}

// Timezone returns the device's reported timezone, falling back to UTC when
// no settings have been received yet.
func (m *Manager) Timezone() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings.Timezone == "" {
		return "UTC"
	}
	return m.settings.Timezone
}

// NeedsLocation reports whether answering query requires a position fix.
func NeedsLocation(query string) bool { return wakeword.NeedsLocation(query) }

// NeedsGeocoding reports whether answering query requires resolving the fix
// to a place name rather than raw coordinates.
func NeedsGeocoding(query string) bool { return wakeword.NeedsGeocoding(query) }
