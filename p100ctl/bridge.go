package main

import (
	"context"
	"fmt"

	"github.com/siegeld/steinway-lyngdorf/mqttbridge"
	"github.com/siegeld/steinway-lyngdorf/p100"
)

// runBridge relays the device to MQTT until interrupted. The device
// reconnects on its own when the stream drops.
func (a *app) runBridge(ctx context.Context, dev *p100.Device, args []string) error {
	if len(args) > 0 {
		return usageError("bridge takes no arguments; configure it in the mqtt section")
	}
	cfg, err := a.bridgeConfig()
	if err != nil {
		return err
	}

	bridge := mqttbridge.New(cfg, dev, a.logger)
	if err := bridge.Start(ctx); err != nil {
		return err
	}
	defer bridge.Stop()

	fmt.Fprintf(a.out, "Bridging %s to %s as %s (topics %s/...)\n",
		dev.Target(), cfg.Broker, bridge.ClientID(), cfg.TopicPrefix)

	<-ctx.Done()
	return nil
}

func (a *app) bridgeConfig() (mqttbridge.Config, error) {
	m := a.cfg.MQTT
	if m.Broker == "" {
		return mqttbridge.Config{}, usageError("bridge needs mqtt.broker in the config file")
	}
	if m.QoS < 0 || m.QoS > 2 {
		return mqttbridge.Config{}, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", m.QoS)
	}
	return mqttbridge.Config{
		Broker:      m.Broker,
		ClientID:    m.ClientID,
		Username:    m.Username,
		Password:    m.Password,
		TopicPrefix: m.TopicPrefix,
		QoS:         byte(m.QoS),
		Timeout:     a.cfg.timeout(),
	}, nil
}
