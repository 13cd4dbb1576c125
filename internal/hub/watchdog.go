package hub

import (
	"time"

	"homehub/internal/logger"
)

// Watchdog disconnects devices whose last heartbeat is older than the
// threshold. One sweep runs at a time; the next is armed only after the
// current one finishes.
type Watchdog struct {
	log       *logger.Logger
	hub       *Hub
	interval  time.Duration
	threshold time.Duration
	stop      chan struct{}
}

func NewWatchdog(log *logger.Logger, h *Hub, interval, threshold time.Duration) *Watchdog {
	return &Watchdog{
		log:       log,
		hub:       h,
		interval:  interval,
		threshold: threshold,
		stop:      make(chan struct{}),
	}
}

// Start launches the sweep loop
func (w *Watchdog) Start() {
	go w.loop()
}

func (w *Watchdog) loop() {
	for {
		select {
		case <-w.stop:
			return
		case <-time.After(w.interval):
			w.Sweep(time.Now())
		}
	}
}

// Sweep disconnects every connected device that has been silent past the
// threshold
func (w *Watchdog) Sweep(now time.Time) {
	for _, id := range w.hub.staleDevices(now, w.threshold) {
		w.log.Warnw("device heartbeat timed out", "device", id)
		w.hub.ForceDisconnect(id)
	}
}

// Stop halts the sweep loop
func (w *Watchdog) Stop() {
	close(w.stop)
}
