package feature

import (
	"sync"
	"time"

	"homehub/internal/models"
)

// Source tags the origin of a feature mutation. It exists solely to suppress
// update echoes: a write is never pushed back in the direction it came from.
// Every mutating entry point takes it explicitly.
type Source int

const (
	SourceDevice Source = iota
	SourceDashboard
	SourceInternal
)

func (s Source) String() string {
	switch s {
	case SourceDevice:
		return "device"
	case SourceDashboard:
		return "dashboard"
	default:
		return "internal"
	}
}

// Feature is the runtime state of one feature: the decoded current value
// plus the cloud reconciliation bookkeeping. The persisted encoded value
// lives in the features table and converges with the in-memory value after
// every save.
type Feature struct {
	ID        string
	DeviceID  string
	LocalID   string
	Name      string
	Kind      string
	Caps      models.Capability
	CloudID   string // remote vendor device id, empty for local devices
	CloudCode string // remote vendor property code

	mu          sync.RWMutex
	value       any
	cloudDirty  bool
	cloudSent   time.Time // last successful push to the vendor
	cloudPulled time.Time // last vendor change applied locally
}

// Value returns the decoded current value
func (f *Feature) Value() any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// Readable reports whether the feature can be read
func (f *Feature) Readable() bool { return f.Caps&models.CapReadable != 0 }

// Writable reports whether the feature accepts writes
func (f *Feature) Writable() bool { return f.Caps&models.CapWritable != 0 }

// setValue swaps the current value, returning the previous one.
// markCloud flags the feature for the next cloud push batch.
func (f *Feature) setValue(v any, markCloud bool) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	old := f.value
	f.value = v
	if markCloud && f.CloudCode != "" {
		f.cloudDirty = true
	}
	return old
}

// CloudPending reports whether the feature awaits a cloud push
func (f *Feature) CloudPending() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cloudDirty
}

// MarkCloudSent clears the dirty flag and records the push timestamp
func (f *Feature) MarkCloudSent(at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cloudDirty = false
	f.cloudSent = at
}

// CloudSyncedAt returns the newer of the last push and last applied pull
// timestamps; a polled vendor change older than this must be discarded.
func (f *Feature) CloudSyncedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.cloudPulled.After(f.cloudSent) {
		return f.cloudPulled
	}
	return f.cloudSent
}

// MarkCloudApplied records the timestamp of an applied vendor change
func (f *Feature) MarkCloudApplied(at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cloudPulled = at
}

// Registry is the id-indexed table of runtime features. It is constructed
// once and passed by handle into every service needing feature lookup.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Feature
	byDevice map[string][]*Feature
	byLocal  map[string]map[string]*Feature // device id -> local id -> feature
}

// NewRegistry creates an empty feature registry
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Feature),
		byDevice: make(map[string][]*Feature),
		byLocal:  make(map[string]map[string]*Feature),
	}
}

// Add registers a feature
func (r *Registry) Add(f *Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[f.ID] = f
	r.byDevice[f.DeviceID] = append(r.byDevice[f.DeviceID], f)
	locals := r.byLocal[f.DeviceID]
	if locals == nil {
		locals = make(map[string]*Feature)
		r.byLocal[f.DeviceID] = locals
	}
	locals[f.LocalID] = f
}

// ByID looks a feature up by its id
func (r *Registry) ByID(id string) (*Feature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byID[id]
	return f, ok
}

// ByDeviceLocal looks a feature up by owning device and device-local id
func (r *Registry) ByDeviceLocal(deviceID, localID string) (*Feature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byLocal[deviceID][localID]
	return f, ok
}

// ByDevice returns the features of one device
func (r *Registry) ByDevice(deviceID string) []*Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Feature, len(r.byDevice[deviceID]))
	copy(out, r.byDevice[deviceID])
	return out
}

// All returns every registered feature
func (r *Registry) All() []*Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Feature, 0, len(r.byID))
	for _, f := range r.byID {
		out = append(out, f)
	}
	return out
}

// CloudPending returns the features flagged for the next cloud push
func (r *Registry) CloudPending() []*Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Feature
	for _, f := range r.byID {
		if f.CloudPending() {
			out = append(out, f)
		}
	}
	return out
}
