// Package hours decides whether a hub is inside its local business window
// and holds the per-hub regional profiles the decision is based on.
package hours

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Default business window, local time, [start, end).
const (
	DefaultStartHour = 9
	DefaultEndHour   = 18
)

// Profile is the regional configuration of one hub.
type Profile struct {
	HubID         string `yaml:"hub_id" json:"hub_id"`
	Timezone      string `yaml:"timezone" json:"timezone"`
	ProxyProvider string `yaml:"proxy_provider,omitempty" json:"proxy_provider,omitempty"`
	ProxyRegion   string `yaml:"proxy_region,omitempty" json:"proxy_region,omitempty"`
	StartHour     int    `yaml:"business_start_hour" json:"business_start_hour"`
	EndHour       int    `yaml:"business_end_hour" json:"business_end_hour"`
}

// DefaultProfiles are the built-in hubs.
func DefaultProfiles() []Profile {
	p := func(hub, tz, region string) Profile {
		return Profile{HubID: hub, Timezone: tz, ProxyRegion: region, StartHour: DefaultStartHour, EndHour: DefaultEndHour}
	}
	return []Profile{
		p("Singapore", "Asia/Singapore", "StarHub/Singtel"),
		p("Vietnam", "Asia/Ho_Chi_Minh", ""),
		p("Hong Kong", "Asia/Hong_Kong", "HKBN/PCCW"),
		p("Dubai", "Asia/Dubai", "Etisalat/du"),
		p("Riyadh", "Asia/Riyadh", "STC/Mobily"),
		p("Abu Dhabi", "Asia/Dubai", ""),
		p("Mumbai", "Asia/Kolkata", "Airtel/Jio"),
		p("Bangalore", "Asia/Kolkata", "Airtel/Jio"),
	}
}

// fallback is used for hubs with no profile.
func fallback(hub string) Profile {
	return Profile{HubID: hub, Timezone: "UTC", StartHour: DefaultStartHour, EndHour: DefaultEndHour}
}

type profileFile struct {
	Hubs []Profile `yaml:"hubs"`
}

// Registry holds hub profiles in three layers: DefaultProfiles, the
// overrides given to NewRegistry, and the last loaded file, later layers
// winning per hub. Reads are concurrent; Load and Watch swap the file layer
// atomically.
type Registry struct {
	mu        sync.RWMutex
	base      []Profile
	profiles  map[string]Profile
	locations map[string]*time.Location
	logger    *slog.Logger
}

// NewRegistry creates a registry with DefaultProfiles plus overrides.
func NewRegistry(logger *slog.Logger, overrides ...Profile) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger, base: append([]Profile(nil), overrides...)}
	r.replace(nil)
	return r
}

func (r *Registry) replace(fileLayer []Profile) {
	profiles := make(map[string]Profile)
	for _, p := range DefaultProfiles() {
		profiles[p.HubID] = p
	}
	layers := append(append([]Profile(nil), r.base...), fileLayer...)
	for _, p := range layers {
		if p.HubID == "" {
			continue
		}
		if p.Timezone == "" {
			p.Timezone = "UTC"
		}
		if p.StartHour == 0 && p.EndHour == 0 {
			p.StartHour, p.EndHour = DefaultStartHour, DefaultEndHour
		}
		profiles[p.HubID] = p
	}

	r.mu.Lock()
	r.profiles = profiles
	r.locations = make(map[string]*time.Location)
	r.mu.Unlock()
}

// Profile returns the hub's profile or a UTC 9-18 fallback for unknown hubs.
func (r *Registry) Profile(hub string) Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.profiles[hub]; ok {
		return p
	}
	return fallback(hub)
}

// Hubs returns every known hub ID, sorted.
func (r *Registry) Hubs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Location resolves the hub timezone. An unloadable zone falls back to UTC.
func (r *Registry) Location(hub string) *time.Location {
	p := r.Profile(hub)

	r.mu.RLock()
	loc, ok := r.locations[p.Timezone]
	r.mu.RUnlock()
	if ok {
		return loc
	}

	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		r.logger.Warn("hours: unknown timezone, using UTC", "hub", hub, "timezone", p.Timezone, "error", err)
		loc = time.UTC
	}
	r.mu.Lock()
	r.locations[p.Timezone] = loc
	r.mu.Unlock()
	return loc
}

// Load reads a YAML file with a top-level `hubs:` list and makes it the
// file layer, replacing the previously loaded file.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("hours: read %s: %w", path, err)
	}
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("hours: parse %s: %w", path, err)
	}
	r.replace(f.Hubs)
	r.logger.Info("hours: profiles loaded", "path", path, "hubs", len(f.Hubs))
	return nil
}

// Watch reloads path whenever it is written or recreated, until ctx ends.
// The parent directory is watched so editors that replace the file are
// handled. Reload errors are logged and the previous profiles kept.
func (r *Registry) Watch(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("hours: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("hours: watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := r.Load(path); err != nil {
				r.logger.Warn("hours: reload failed", "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("hours: watcher error", "error", err)
		}
	}
}
