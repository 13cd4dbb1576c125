package hub

import (
	"context"
	"encoding/json"
	"time"

	"homehub/internal/feature"
	"homehub/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// deviceConn is one device socket. device stays nil until the handshake
// succeeds; frames other than auth are dropped before that.
type deviceConn struct {
	hub    *Hub
	sock   socket
	device *models.Device
}

// ServeDevice runs the read loop of a device socket until it closes
func (h *Hub) ServeDevice(conn *websocket.Conn) {
	dc := &deviceConn{hub: h, sock: conn}
	defer func() {
		h.detachDevice(dc)
		_ = conn.Close()
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.log.Warnw("undecodable device frame", "err", err)
			continue
		}
		dc.handle(context.Background(), env)
	}
}

func (dc *deviceConn) handle(ctx context.Context, env Envelope) {
	if dc.device == nil && env.Command != "auth" {
		return
	}
	switch env.Command {
	case "auth":
		dc.handleAuth(ctx, env)
	case "update":
		dc.handleUpdate(env)
	case "features":
		dc.handleFeatures(ctx, env)
	case "heartbeat":
		dc.hub.Heartbeat(dc.device.ID)
	default:
		dc.hub.log.Warnw("unknown device command", "command", env.Command)
	}
}

// handleAuth resolves or creates the device by hardware id. A token
// mismatch is rejected silently: nothing goes back to the device, the
// socket stays unauthenticated and the client runs into its own timeout.
// Dashboards see every status transition as an update:device frame.
func (dc *deviceConn) handleAuth(ctx context.Context, env Envelope) {
	var p deviceAuthPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.HardwareID == "" {
		return
	}
	h := dc.hub

	h.mu.Lock()
	id, known := h.byHardware[p.HardwareID]
	var st *deviceState
	var announce models.Device
	if known {
		st = h.devices[id]
		if st.conn != nil {
			// a socket is still attached: redial window
			st.status = models.StatusReconnecting
		} else {
			st.status = models.StatusAuthenticating
		}
		announce = st.model
		announce.Status = st.status
	}
	h.mu.Unlock()
	if known {
		h.pushDeviceUpdate(announce)
	}

	if !known {
		// first contact creates the device with the offered token
		d := &models.Device{
			ID:         uuid.NewString(),
			HardwareID: p.HardwareID,
			Name:       p.Name,
			Token:      p.Token,
		}
		if err := h.store.CreateDevice(ctx, d); err != nil {
			h.log.Errorw("creating device failed", "hardware_id", p.HardwareID, "err", err)
			return
		}
		st = &deviceState{model: *d, status: models.StatusAuthenticating}
		h.mu.Lock()
		h.devices[d.ID] = st
		h.byHardware[d.HardwareID] = d.ID
		h.mu.Unlock()
		h.log.Infow("device created on first contact", "device", d.ID, "hardware_id", p.HardwareID)
		announce = *d
		announce.Status = models.StatusAuthenticating
		h.pushDeviceUpdate(announce)
	} else if st.model.Token != p.Token {
		h.mu.Lock()
		st.status = models.StatusDisconnected
		announce = st.model
		announce.Status = models.StatusDisconnected
		h.mu.Unlock()
		h.log.Warnw("device token mismatch, dropping silently", "hardware_id", p.HardwareID)
		h.pushDeviceUpdate(announce)
		return
	}

	h.mu.Lock()
	if st.conn != nil && st.conn != dc {
		// redial: the new socket wins, the stale one is orphaned
		st.conn.device = nil
	}
	st.conn = dc
	st.status = models.StatusConnected
	st.lastSeen = time.Now()
	dc.device = &st.model
	announce = st.model
	announce.Status = models.StatusConnected
	h.mu.Unlock()

	h.pushDeviceUpdate(announce)

	if err := dc.sock.WriteJSON(newEnvelope("features", nil, "device")); err != nil {
		h.log.Warnw("features request failed", "device", st.model.ID, "err", err)
	}
}

// handleUpdate applies a device-reported value with source DEVICE and hands
// the change to the trigger pipeline
func (dc *deviceConn) handleUpdate(env Envelope) {
	var p updatePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return
	}
	h := dc.hub
	f, ok := h.features.Registry().ByDeviceLocal(dc.device.ID, p.ID)
	if !ok {
		h.log.Warnw("update for unknown feature", "device", dc.device.ID, "local_id", p.ID)
		return
	}
	if err := h.features.SetValue(f, p.Value, feature.SourceDevice, ""); err != nil {
		h.log.Warnw("device value rejected", "device", dc.device.ID, "local_id", p.ID, "err", err)
		return
	}
	h.Heartbeat(dc.device.ID)
	if h.onDeviceChange != nil {
		h.onDeviceChange(dc.device.ID)
	}
}

// handleFeatures runs append-only capability discovery, then syncs the full
// current state back to the device
func (dc *deviceConn) handleFeatures(ctx context.Context, env Envelope) {
	var reports []feature.Report
	if err := json.Unmarshal(env.Data, &reports); err != nil {
		dc.hub.log.Warnw("undecodable features report", "device", dc.device.ID, "err", err)
		return
	}
	h := dc.hub
	if err := h.features.Discover(ctx, dc.device.ID, dc.device.CloudID, reports); err != nil {
		h.log.Errorw("feature discovery failed", "device", dc.device.ID, "err", err)
		return
	}
	for _, f := range h.features.Registry().ByDevice(dc.device.ID) {
		env := newEnvelope("update", updatePayload{ID: f.LocalID, Value: f.Value()}, "device")
		if err := dc.sock.WriteJSON(env); err != nil {
			h.log.Warnw("state sync to device failed", "device", dc.device.ID, "err", err)
			return
		}
	}
}

// detachDevice drops the conn from its device on socket close. The device
// and its features survive; only the status changes.
func (h *Hub) detachDevice(dc *deviceConn) {
	if dc.device == nil {
		return
	}
	h.mu.Lock()
	var announce *models.Device
	if st, ok := h.devices[dc.device.ID]; ok && st.conn == dc {
		st.conn = nil
		st.status = models.StatusDisconnected
		d := st.model
		d.Status = models.StatusDisconnected
		announce = &d
	}
	dc.device = nil
	h.mu.Unlock()
	if announce != nil {
		h.pushDeviceUpdate(*announce)
	}
}
