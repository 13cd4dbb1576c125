package hub

import (
	"context"
	"encoding/json"

	"homehub/internal/feature"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// dashboardConn is one dashboard viewer socket
type dashboardConn struct {
	id     string
	hub    *Hub
	sock   socket
	authed bool
	userID string
}

// ServeDashboard runs the read loop of a dashboard socket until it closes
func (h *Hub) ServeDashboard(conn *websocket.Conn) {
	dc := &dashboardConn{id: uuid.NewString(), hub: h, sock: conn}
	h.mu.Lock()
	h.dashboards[dc.id] = dc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.dashboards, dc.id)
		h.mu.Unlock()
		_ = conn.Close()
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.log.Warnw("undecodable dashboard frame", "err", err)
			continue
		}
		dc.handle(context.Background(), env)
	}
}

func (dc *dashboardConn) handle(ctx context.Context, env Envelope) {
	if !dc.authed && env.Command != "auth" {
		return
	}
	switch env.Command {
	case "auth":
		dc.handleAuth(ctx, env)
	case "update":
		dc.handleUpdate(env)
	case "reset":
		dc.handleReset(env)
	default:
		dc.hub.log.Warnw("unknown dashboard command", "command", env.Command)
	}
}

// handleAuth resolves a live session. An absent or expired session is
// rejected silently: no frame is sent and the socket stays deaf.
func (dc *dashboardConn) handleAuth(ctx context.Context, env Envelope) {
	var p dashboardAuthPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.SessionID == "" {
		return
	}
	h := dc.hub
	userID, err := h.sessions.ValidateTokenSession(ctx, p.SessionID)
	if err != nil {
		h.log.Warnw("dashboard session rejected", "conn", dc.id, "err", err)
		return
	}
	dc.authed = true
	dc.userID = userID

	// full state sync to the fresh viewer
	snapshots := make([]featureSnapshot, 0)
	for _, f := range h.features.Registry().All() {
		snapshots = append(snapshots, featureSnapshot{
			ID:       f.ID,
			DeviceID: f.DeviceID,
			Name:     f.Name,
			Kind:     f.Kind,
			Value:    f.Value(),
		})
	}
	if err := dc.sock.WriteJSON(newEnvelope("features", snapshots, "dashboard")); err != nil {
		h.log.Warnw("dashboard state sync failed", "conn", dc.id, "err", err)
	}
}

// handleUpdate applies a viewer write with source DASHBOARD, tagged with
// this socket so the fan-out excludes it
func (dc *dashboardConn) handleUpdate(env Envelope) {
	var p dashboardUpdatePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return
	}
	h := dc.hub
	if err := h.features.SetValueByID(p.ID, p.Value, feature.SourceDashboard, dc.id); err != nil {
		h.log.Warnw("dashboard value rejected", "feature", p.ID, "err", err)
		return
	}
	if h.onDeviceChange != nil {
		if deviceID, ok := h.features.DeviceOf(p.ID); ok {
			h.onDeviceChange(deviceID)
		}
	}
}

// handleReset forwards a reset command to a named device
func (dc *dashboardConn) handleReset(env Envelope) {
	var p resetPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.Device == "" {
		return
	}
	if err := dc.hub.ResetDevice(p.Device); err != nil {
		dc.hub.log.Warnw("device reset failed", "device", p.Device, "err", err)
	}
}
