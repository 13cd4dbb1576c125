package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"homehub/internal/feature"
	"homehub/internal/hub"
	"homehub/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	stateTopic   = "devices/+/state"
	commandTopic = "devices/%s/commands"
)

// DeviceIndex is the slice of the hub the bridge needs to resolve and
// touch devices reporting over MQTT
type DeviceIndex interface {
	DeviceIDByHardware(hardwareID string) (string, bool)
	Heartbeat(deviceID string)
}

// Bridge feeds MQTT state reports into the feature pipeline and carries
// outbound commands for devices that have no live socket. It satisfies
// hub.CommandPublisher.
type Bridge struct {
	log            *logger.Logger
	client         mqtt.Client
	features       *feature.Service
	devices        DeviceIndex
	onDeviceChange func(deviceID string)
}

func NewBridge(log *logger.Logger, client mqtt.Client, features *feature.Service, devices DeviceIndex, onDeviceChange func(deviceID string)) *Bridge {
	return &Bridge{
		log:            log,
		client:         client,
		features:       features,
		devices:        devices,
		onDeviceChange: onDeviceChange,
	}
}

// Start subscribes to the device state topic
func (b *Bridge) Start() error {
	token := b.client.Subscribe(stateTopic, 1, b.handleState)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

type statePayload struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// handleState applies one device report. The hardware id comes from the
// topic, the feature local id from the payload.
func (b *Bridge) handleState(_ mqtt.Client, msg mqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) != 3 {
		return
	}
	hardwareID := parts[1]
	deviceID, ok := b.devices.DeviceIDByHardware(hardwareID)
	if !ok {
		b.log.Warnw("state report from unknown hardware", "hardware", hardwareID)
		return
	}
	var p statePayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		b.log.Warnw("undecodable state report", "hardware", hardwareID, "err", err)
		return
	}
	f, ok := b.features.Registry().ByDeviceLocal(deviceID, p.ID)
	if !ok {
		b.log.Warnw("state report for unknown feature", "device", deviceID, "local", p.ID)
		return
	}
	if err := b.features.SetValue(f, p.Value, feature.SourceDevice, ""); err != nil {
		b.log.Warnw("state report rejected", "feature", f.ID, "err", err)
		return
	}
	b.devices.Heartbeat(deviceID)
	if b.onDeviceChange != nil {
		b.onDeviceChange(deviceID)
	}
}

// PublishCommand delivers one command envelope to a device command topic
func (b *Bridge) PublishCommand(hardwareID string, env hub.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	token := b.client.Publish(fmt.Sprintf(commandTopic, hardwareID), 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}
