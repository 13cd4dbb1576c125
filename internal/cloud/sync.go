package cloud

import (
	"context"
	"time"

	"homehub/internal/feature"
	"homehub/internal/logger"
)

// API is the slice of the vendor client the sync loops use
type API interface {
	DeviceStatus(ctx context.Context, cloudID string) ([]StatusEntry, error)
	SendCommands(ctx context.Context, cloudID string, cmds []Command) error
}

// Syncer mirrors cloud-backed features between the local registry and the
// vendor cloud. The push loop batches locally dirty features per device;
// the pull loop polls device status and applies only datapoints newer than
// the feature's last sync. Both loops run for the life of the process.
type Syncer struct {
	log      *logger.Logger
	client   API
	features *feature.Service
	pushTick time.Duration
	pullTick time.Duration
}

func NewSyncer(log *logger.Logger, client API, features *feature.Service, pushTick, pullTick time.Duration) *Syncer {
	return &Syncer{
		log:      log,
		client:   client,
		features: features,
		pushTick: pushTick,
		pullTick: pullTick,
	}
}

// Start launches the push and pull loops
func (s *Syncer) Start(ctx context.Context) {
	go s.loop(ctx, s.pushTick, s.Push)
	go s.loop(ctx, s.pullTick, s.Pull)
}

// loop arms the next pass only after the current one returns, so a slow
// cloud round trip never stacks passes
func (s *Syncer) loop(ctx context.Context, tick time.Duration, pass func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(tick):
			pass(ctx)
		}
	}
}

// Push sends every dirty cloud-backed feature, one request per device. A
// failing device is logged and skipped; its features stay dirty for the
// next pass.
func (s *Syncer) Push(ctx context.Context) {
	pending := s.features.Registry().CloudPending()
	if len(pending) == 0 {
		return
	}
	byCloudID := make(map[string][]*feature.Feature)
	for _, f := range pending {
		if f.CloudID == "" || f.CloudCode == "" {
			continue
		}
		byCloudID[f.CloudID] = append(byCloudID[f.CloudID], f)
	}
	for cloudID, fs := range byCloudID {
		cmds := make([]Command, 0, len(fs))
		for _, f := range fs {
			wire, err := EncodeValue(f.Kind, f.Value())
			if err != nil {
				s.log.Warnw("cloud encode failed", "feature", f.ID, "err", err)
				continue
			}
			cmds = append(cmds, Command{Code: f.CloudCode, Value: wire})
		}
		if len(cmds) == 0 {
			continue
		}
		if err := s.client.SendCommands(ctx, cloudID, cmds); err != nil {
			s.log.Warnw("cloud push failed", "cloudDevice", cloudID, "err", err)
			continue
		}
		now := time.Now()
		for _, f := range fs {
			f.MarkCloudSent(now)
		}
	}
}

// Pull polls the status of every cloud-backed device and applies vendor
// changes that are newer than the feature's last sync. Applied values
// enter through the normal device path so echo suppression holds.
func (s *Syncer) Pull(ctx context.Context) {
	byCloudID := make(map[string][]*feature.Feature)
	for _, f := range s.features.Registry().All() {
		if f.CloudID == "" || f.CloudCode == "" {
			continue
		}
		byCloudID[f.CloudID] = append(byCloudID[f.CloudID], f)
	}
	for cloudID, fs := range byCloudID {
		entries, err := s.client.DeviceStatus(ctx, cloudID)
		if err != nil {
			s.log.Warnw("cloud poll failed", "cloudDevice", cloudID, "err", err)
			continue
		}
		byCode := make(map[string]StatusEntry, len(entries))
		for _, e := range entries {
			byCode[e.Code] = e
		}
		for _, f := range fs {
			entry, ok := byCode[f.CloudCode]
			if !ok {
				continue
			}
			changedAt := time.UnixMilli(entry.Timestamp)
			if !changedAt.After(f.CloudSyncedAt()) {
				continue
			}
			local, err := DecodeValue(f.Kind, entry.Value)
			if err != nil {
				s.log.Warnw("cloud decode failed", "feature", f.ID, "err", err)
				continue
			}
			if err := s.features.SetValue(f, local, feature.SourceDevice, ""); err != nil {
				s.log.Warnw("cloud value rejected", "feature", f.ID, "err", err)
				continue
			}
			f.MarkCloudApplied(changedAt)
		}
	}
}
