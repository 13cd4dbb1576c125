package feature

import (
	"context"
	"fmt"

	"homehub/internal/logger"
	"homehub/internal/models"

	"github.com/google/uuid"
)

// Store is the slice of the persistence contract the feature service needs
type Store interface {
	Features(ctx context.Context) ([]models.Feature, error)
	CreateFeature(ctx context.Context, f *models.Feature) error
	SaveFeatureValue(ctx context.Context, id, encoded string) error
}

// DashboardSink pushes feature updates and free-form commands to connected
// dashboards. exclude names the originating connection to skip.
type DashboardSink interface {
	PushFeatureUpdate(f *Feature, exclude string)
	Broadcast(command string, data any)
}

// DeviceSink pushes a command carrying the feature's new value to the owning
// device's connection. Fire and forget.
type DeviceSink interface {
	PushFeatureCommand(f *Feature)
}

// DeviceResolver maps a device id to its remote vendor id, if any
type DeviceResolver interface {
	CloudID(deviceID string) string
}

// Service owns the feature registry and the update protocol
type Service struct {
	log        *logger.Logger
	reg        *Registry
	store      Store
	dashboards DashboardSink
	devices    DeviceSink
}

// NewService creates the feature service. Sinks are bound later because the
// hub that implements them needs the service first.
func NewService(log *logger.Logger, reg *Registry, store Store) *Service {
	return &Service{log: log, reg: reg, store: store}
}

// BindSinks attaches the dashboard and device push sinks
func (s *Service) BindSinks(dashboards DashboardSink, devices DeviceSink) {
	s.dashboards = dashboards
	s.devices = devices
}

// Registry returns the service's feature registry
func (s *Service) Registry() *Registry { return s.reg }

// Load populates the registry from storage, decoding persisted values with
// each feature's kind codec. Missing or empty encoded values fall back to
// the kind default.
func (s *Service) Load(ctx context.Context, devices DeviceResolver) error {
	rows, err := s.store.Features(ctx)
	if err != nil {
		return fmt.Errorf("loading features: %w", err)
	}
	for _, row := range rows {
		kind, ok := KindByName(row.Kind)
		if !ok {
			return fmt.Errorf("%w: %q (feature %s)", ErrUnknownKind, row.Kind, row.ID)
		}
		value := kind.Default
		if row.Value != "" {
			decoded, err := kind.Decode(row.Value)
			if err != nil {
				s.log.Warnw("feature value undecodable, using kind default", "feature", row.ID, "err", err)
			} else if decoded != nil {
				value = decoded
			}
		}
		f := &Feature{
			ID:        row.ID,
			DeviceID:  row.DeviceID,
			LocalID:   row.LocalID,
			Name:      row.Name,
			Kind:      row.Kind,
			Caps:      row.Caps,
			CloudCode: row.CloudCode,
			value:     value,
		}
		if devices != nil {
			f.CloudID = devices.CloudID(row.DeviceID)
		}
		s.reg.Add(f)
	}
	s.log.Infow("features loaded", "count", len(rows))
	return nil
}

// SetValue applies the update protocol:
//  1. process the value with the kind's validator and replace the current value
//  2. run the kind's internal listener (alert edges, one-shot notifications)
//  3. push to dashboards, excluding the originating dashboard socket
//  4. push a command to the owning device unless the write came from it
//
// Persistence of the encoded value happens asynchronously and is not on the
// evaluation path. origin names the originating dashboard connection and is
// empty for device and internal writes.
func (s *Service) SetValue(f *Feature, raw any, source Source, origin string) error {
	kind, ok := KindByName(f.Kind)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, f.Kind)
	}
	value, err := kind.Process(raw)
	if err != nil {
		return err
	}

	// A cloud-backed feature is flagged for push unless the write came from
	// the device side, which for cloud devices is the pull loop itself.
	old := f.setValue(value, source != SourceDevice)

	s.runInternalListener(f, old, value)

	if s.dashboards != nil {
		s.dashboards.PushFeatureUpdate(f, origin)
	}
	if source != SourceDevice && s.devices != nil {
		s.devices.PushFeatureCommand(f)
	}

	go s.save(f)
	return nil
}

// SetValueByID resolves a feature by id and applies SetValue
func (s *Service) SetValueByID(id string, raw any, source Source, origin string) error {
	f, ok := s.reg.ByID(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.SetValue(f, raw, source, origin)
}

// CurrentValue returns the live decoded value of a feature
func (s *Service) CurrentValue(id string) (any, bool) {
	f, ok := s.reg.ByID(id)
	if !ok {
		return nil, false
	}
	return f.Value(), true
}

// DeviceOf returns the owning device of a feature
func (s *Service) DeviceOf(id string) (string, bool) {
	f, ok := s.reg.ByID(id)
	if !ok {
		return "", false
	}
	return f.DeviceID, true
}

// DecodeConstant decodes a stored comparison constant using the referenced
// feature's kind codec
func (s *Service) DecodeConstant(featureID, encoded string) (any, error) {
	f, ok := s.reg.ByID(featureID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, featureID)
	}
	kind, ok := KindByName(f.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Kind)
	}
	return kind.Decode(encoded)
}

// Report is one capability entry of a device's features report
type Report struct {
	LocalID  string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
}

// Discover creates any reported capability not yet known. Discovery is
// append-only: features absent from a later report are never deleted.
func (s *Service) Discover(ctx context.Context, deviceID, cloudID string, reports []Report) error {
	for _, rep := range reports {
		if _, exists := s.reg.ByDeviceLocal(deviceID, rep.LocalID); exists {
			continue
		}
		kind, ok := KindByName(rep.Kind)
		if !ok {
			s.log.Warnw("skipping reported feature of unknown kind", "device", deviceID, "local_id", rep.LocalID, "kind", rep.Kind)
			continue
		}
		var caps models.Capability
		if rep.Readable {
			caps |= models.CapReadable
		}
		if rep.Writable {
			caps |= models.CapWritable
		}
		encoded, err := kind.Encode(kind.Default)
		if err != nil {
			return err
		}
		row := &models.Feature{
			ID:       uuid.NewString(),
			DeviceID: deviceID,
			LocalID:  rep.LocalID,
			Name:     rep.Name,
			Kind:     rep.Kind,
			Caps:     caps,
			Value:    encoded,
		}
		if err := s.store.CreateFeature(ctx, row); err != nil {
			return fmt.Errorf("creating feature %s/%s: %w", deviceID, rep.LocalID, err)
		}
		f := &Feature{
			ID:       row.ID,
			DeviceID: deviceID,
			LocalID:  rep.LocalID,
			Name:     rep.Name,
			Kind:     rep.Kind,
			Caps:     caps,
			CloudID:  cloudID,
			value:    kind.Default,
		}
		s.reg.Add(f)
		s.log.Infow("feature discovered", "device", deviceID, "local_id", rep.LocalID, "kind", rep.Kind)
	}
	return nil
}

// runInternalListener handles the composite kinds. Alert fires a dashboard
// notification on both the rising and the falling edge; notification fires a
// one-shot message and resets itself to empty without re-pushing.
func (s *Service) runInternalListener(f *Feature, old, value any) {
	switch f.Kind {
	case KindAlert:
		ob, _ := ToBool(old)
		nb, _ := ToBool(value)
		if ob != nb && s.dashboards != nil {
			s.dashboards.Broadcast("alert", map[string]any{
				"feature": f.ID,
				"device":  f.DeviceID,
				"active":  nb,
			})
		}
	case KindNotification:
		msg, _ := value.(string)
		if msg == "" {
			return
		}
		if s.dashboards != nil {
			s.dashboards.Broadcast("notification", map[string]any{
				"feature": f.ID,
				"device":  f.DeviceID,
				"message": msg,
			})
		}
		f.setValue("", false)
	}
}

// save persists the encoded current value off the synchronous path
func (s *Service) save(f *Feature) {
	kind, ok := KindByName(f.Kind)
	if !ok {
		return
	}
	encoded, err := kind.Encode(f.Value())
	if err != nil {
		s.log.Errorw("encoding feature value failed", "feature", f.ID, "err", err)
		return
	}
	if err := s.store.SaveFeatureValue(context.Background(), f.ID, encoded); err != nil {
		s.log.Errorw("persisting feature value failed", "feature", f.ID, "err", err)
	}
}
