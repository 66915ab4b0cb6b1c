package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/pantilt/internal/config"
	"github.com/relabs-tech/pantilt/internal/log"
	"github.com/relabs-tech/pantilt/internal/status"
)

// RunConsoleMQTT prints every status the tracker publishes until Ctrl+C.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}

	client, err := status.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	log.Info("console: connected to MQTT broker", "broker", cfg.MQTTBroker)

	printer := status.ReporterFunc(func(s status.Status) {
		fmt.Println(status.Line(s))
	})
	if err := status.Subscribe(client, cfg.TopicStatus, printer); err != nil {
		return err
	}
	log.Info("console: subscribed", "topic", cfg.TopicStatus)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("console: shutting down")
	client.Disconnect(250)
	return nil
}
