// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package status

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/pantilt/internal/log"
)

const publishTimeout = 250 * time.Millisecond

// Connect connects an MQTT client to broker.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// Publisher publishes each status as retained JSON on a topic.
type Publisher struct {
	client mqtt.Client
	topic  string
	log    *slog.Logger
}

// NewPublisher returns a reporter publishing to topic.
func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{
		client: client,
		topic:  topic,
		log:    log.With("component", "status", "topic", topic),
	}
}

func (p *Publisher) Report(s Status) {
	payload, err := json.Marshal(s)
	if err != nil {
		p.log.Warn("status marshal error", "err", err)
		return
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.log.Debug("status publish still pending")
		return
	}
	if err := token.Error(); err != nil {
		p.log.Warn("MQTT publish error", "err", err)
	}
}

// Decode parses a published status payload.
func Decode(payload []byte) (Status, error) {
	var s Status
	if err := json.Unmarshal(payload, &s); err != nil {
		return Status{}, fmt.Errorf("status unmarshal: %w", err)
	}
	return s, nil
}

// Subscribe delivers every status published on topic to r.
func Subscribe(client mqtt.Client, topic string, r Reporter) error {
	lg := log.With("component", "status", "topic", topic)
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s, err := Decode(msg.Payload())
		if err != nil {
			lg.Warn("dropping status", "err", err)
			return
		}
		r.Report(s)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT subscribe %s: %w", topic, err)
	}
	return nil
}
