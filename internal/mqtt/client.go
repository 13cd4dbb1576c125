package mqtt

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// NewClient connects to the broker and returns a raw client
func NewClient(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}
