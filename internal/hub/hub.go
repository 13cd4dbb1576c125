package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"homehub/internal/feature"
	"homehub/internal/logger"
	"homehub/internal/models"
)

// socket is the connection surface the hub writes to. *websocket.Conn
// satisfies it; tests substitute a recording fake.
type socket interface {
	WriteJSON(v any) error
	Close() error
}

// Store is the slice of the persistence contract the hub needs
type Store interface {
	Devices(ctx context.Context) ([]models.Device, error)
	CreateDevice(ctx context.Context, d *models.Device) error
}

// SessionValidator resolves a dashboard session token to a user id.
// auth.AuthModule satisfies it.
type SessionValidator interface {
	ValidateTokenSession(ctx context.Context, token string) (string, error)
}

// CommandPublisher delivers device commands over an alternate transport
// when no socket is attached (the MQTT bridge).
type CommandPublisher interface {
	PublishCommand(hardwareID string, env Envelope) error
}

// deviceState is the runtime record of one device: persisted identity plus
// the connection-scoped status that is never stored.
type deviceState struct {
	model    models.Device
	status   models.DeviceStatus
	lastSeen time.Time
	conn     *deviceConn
}

// Hub owns the per-connection registries for devices and dashboards and the
// outbound fan-out paths. One socket per device, one per dashboard viewer;
// reattachment on redial, no cross-socket affinity.
type Hub struct {
	log *logger.Logger

	mu         sync.RWMutex
	devices    map[string]*deviceState   // device id -> runtime state
	byHardware map[string]string         // hardware id -> device id
	dashboards map[string]*dashboardConn // connection id -> conn

	store          Store
	features       *feature.Service
	sessions       SessionValidator
	publisher      CommandPublisher
	onDeviceChange func(deviceID string)
}

// New creates the hub
func New(log *logger.Logger, store Store) *Hub {
	return &Hub{
		log:        log,
		store:      store,
		devices:    make(map[string]*deviceState),
		byHardware: make(map[string]string),
		dashboards: make(map[string]*dashboardConn),
	}
}

// Bind attaches the collaborators created after the hub. onDeviceChange is
// invoked after any device-sourced feature write, typically to enqueue
// trigger evaluation.
func (h *Hub) Bind(features *feature.Service, sessions SessionValidator, onDeviceChange func(deviceID string)) {
	h.features = features
	h.sessions = sessions
	h.onDeviceChange = onDeviceChange
}

// SetCommandPublisher attaches the fallback command transport
func (h *Hub) SetCommandPublisher(p CommandPublisher) {
	h.publisher = p
}

// Load populates the device registry from storage; every loaded device
// starts Disconnected
func (h *Hub) Load(ctx context.Context) error {
	devices, err := h.store.Devices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range devices {
		h.devices[d.ID] = &deviceState{model: d, status: models.StatusDisconnected}
		h.byHardware[d.HardwareID] = d.ID
	}
	h.log.Infow("devices loaded", "count", len(devices))
	return nil
}

// CloudID resolves a device id to its remote vendor id (feature.DeviceResolver)
func (h *Hub) CloudID(deviceID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.devices[deviceID]; ok {
		return st.model.CloudID
	}
	return ""
}

// DeviceList returns every known device with its runtime status
func (h *Hub) DeviceList() []models.Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.Device, 0, len(h.devices))
	for _, st := range h.devices {
		d := st.model
		d.Status = st.status
		out = append(out, d)
	}
	return out
}

// PushFeatureUpdate fans a feature's new value out to every attached
// dashboard except the excluded originating connection
// (feature.DashboardSink).
func (h *Hub) PushFeatureUpdate(f *feature.Feature, exclude string) {
	env := newEnvelope("update", featureSnapshot{
		ID:       f.ID,
		DeviceID: f.DeviceID,
		Name:     f.Name,
		Kind:     f.Kind,
		Value:    f.Value(),
	}, "dashboard")
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, dc := range h.dashboards {
		if id == exclude || !dc.authed {
			continue
		}
		if err := dc.sock.WriteJSON(env); err != nil {
			h.log.Warnw("dashboard push failed", "conn", id, "err", err)
		}
	}
}

// pushDeviceUpdate announces a device status transition to every attached
// dashboard, so viewers track connection state without polling
func (h *Hub) pushDeviceUpdate(d models.Device) {
	h.Broadcast("update:device", d)
}

// Broadcast relays a free-form named command to every attached dashboard
// (feature.DashboardSink)
func (h *Hub) Broadcast(command string, data any) {
	env := newEnvelope(command, data, "dashboard")
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, dc := range h.dashboards {
		if !dc.authed {
			continue
		}
		if err := dc.sock.WriteJSON(env); err != nil {
			h.log.Warnw("dashboard broadcast failed", "conn", id, "command", command, "err", err)
		}
	}
}

// PushFeatureCommand pushes a feature's new value to the owning device,
// fire and forget (feature.DeviceSink). Falls back to the alternate
// transport when no socket is attached.
func (h *Hub) PushFeatureCommand(f *feature.Feature) {
	env := newEnvelope("update", updatePayload{ID: f.LocalID, Value: f.Value()}, "device")

	h.mu.RLock()
	st, ok := h.devices[f.DeviceID]
	var sock socket
	var hardwareID string
	if ok {
		hardwareID = st.model.HardwareID
		if st.conn != nil {
			sock = st.conn.sock
		}
	}
	h.mu.RUnlock()

	if !ok {
		return
	}
	if sock != nil {
		if err := sock.WriteJSON(env); err != nil {
			h.log.Warnw("device command push failed", "device", f.DeviceID, "err", err)
		}
		return
	}
	if h.publisher != nil {
		if err := h.publisher.PublishCommand(hardwareID, env); err != nil {
			h.log.Warnw("device command publish failed", "device", f.DeviceID, "err", err)
		}
	}
}

// ResetDevice forwards a reset command to a device named by hardware id
func (h *Hub) ResetDevice(hardwareID string) error {
	h.mu.RLock()
	id, ok := h.byHardware[hardwareID]
	var sock socket
	if ok {
		if st := h.devices[id]; st.conn != nil {
			sock = st.conn.sock
		}
	}
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown device %q", hardwareID)
	}
	env := newEnvelope("reset", nil, "device")
	if sock != nil {
		return sock.WriteJSON(env)
	}
	if h.publisher != nil {
		return h.publisher.PublishCommand(hardwareID, env)
	}
	return fmt.Errorf("device %q not connected", hardwareID)
}

// DeviceIDByHardware resolves a hardware id to its stored device id
func (h *Hub) DeviceIDByHardware(hardwareID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.byHardware[hardwareID]
	return id, ok
}

// Heartbeat refreshes a device's last-seen timestamp
func (h *Hub) Heartbeat(deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.devices[deviceID]; ok {
		st.lastSeen = time.Now()
	}
}

// ForceDisconnect drops a device to Disconnected and detaches its socket,
// used by the watchdog against half-dead connections
func (h *Hub) ForceDisconnect(deviceID string) {
	h.mu.Lock()
	st, ok := h.devices[deviceID]
	var sock socket
	var announce models.Device
	if ok {
		if st.conn != nil {
			sock = st.conn.sock
			st.conn.device = nil
			st.conn = nil
		}
		st.status = models.StatusDisconnected
		announce = st.model
		announce.Status = models.StatusDisconnected
	}
	h.mu.Unlock()
	if sock != nil {
		_ = sock.Close()
	}
	if ok {
		h.pushDeviceUpdate(announce)
	}
}

// staleDevices returns connected devices silent for longer than threshold
func (h *Hub) staleDevices(now time.Time, threshold time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for id, st := range h.devices {
		if st.status == models.StatusConnected && now.Sub(st.lastSeen) > threshold {
			out = append(out, id)
		}
	}
	return out
}
