// Package profile maps named storage profiles to SolidFire QoS settings.
package profile

import (
	"k8s.io/klog/v2"
)

// Profile is a named QoS policy applied at volume creation time.
// The cluster validates the values; the driver only requires that all
// three fields are present and positive. Ordering (min <= max <= burst)
// is deliberately not enforced here.
type Profile struct {
	MinIOPS   int64 `json:"minIOPS"`
	MaxIOPS   int64 `json:"maxIOPS"`
	BurstIOPS int64 `json:"burstIOPS"`
}

// complete reports whether all three QoS fields are set.
func (p Profile) complete() bool {
	return p.MinIOPS > 0 && p.MaxIOPS > 0 && p.BurstIOPS > 0
}

// Registry resolves profile names to QoS policies. It is built once at
// driver initialization and read-only afterwards.
type Registry struct {
	profiles map[string]Profile
}

// Defaults returns the built-in three-tier profile set used when no
// profile configuration is supplied.
func Defaults() map[string]Profile {
	return map[string]Profile{
		"Gold":   {MinIOPS: 5000, MaxIOPS: 8000, BurstIOPS: 15000},
		"Silver": {MinIOPS: 3000, MaxIOPS: 5000, BurstIOPS: 10000},
		"Bronze": {MinIOPS: 1000, MaxIOPS: 3000, BurstIOPS: 5000},
	}
}

// NewRegistry builds a registry from the given profile map, falling back
// to the built-in tiers when the map is nil. Entries with missing QoS
// fields are dropped with a diagnostic rather than kept as partial
// records.
func NewRegistry(configured map[string]Profile) *Registry {
	src := configured
	if src == nil {
		klog.V(4).Info("No profiles configured, using built-in Gold/Silver/Bronze tiers")
		src = Defaults()
	}

	profiles := make(map[string]Profile, len(src))
	for name, p := range src {
		if !p.complete() {
			klog.Warningf("Dropping profile %q: incomplete QoS (minIOPS=%d, maxIOPS=%d, burstIOPS=%d)",
				name, p.MinIOPS, p.MaxIOPS, p.BurstIOPS)
			continue
		}
		profiles[name] = p
	}

	return &Registry{profiles: profiles}
}

// Resolve looks up a profile by name. A miss is never an error: volume
// creation proceeds without QoS parameters, so unknown names return
// (zero, false) with a diagnostic log.
func (r *Registry) Resolve(name string) (Profile, bool) {
	if name == "" {
		return Profile{}, false
	}

	p, ok := r.profiles[name]
	if !ok {
		klog.Warningf("Requested profile not found: %s", name)
		return Profile{}, false
	}

	klog.V(4).Infof("Resolved profile %s: minIOPS=%d maxIOPS=%d burstIOPS=%d",
		name, p.MinIOPS, p.MaxIOPS, p.BurstIOPS)
	return p, true
}

// Names returns the set of resolvable profile names (for logging).
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}
