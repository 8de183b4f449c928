// communicator - A contact list filtering and device notification core.
// Copyright (C) 2024 communicator contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package devicenotify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the log instead of showing them.
type LogNotifier struct {
	Log zerolog.Logger
}

func (ln *LogNotifier) Notify(_ context.Context, title, body string) error {
	ln.Log.Info().Str("title", title).Str("body", body).Msg("Device notification")
	return nil
}

var (
	ErrMQTTNotConnected = errors.New("not connected to MQTT broker")
	ErrMQTTTimeout      = errors.New("timed out waiting for MQTT broker")
)

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
	QoS      byte   `yaml:"qos"`
}

// MQTTNotifier publishes notifications to an MQTT topic for a separate
// notification daemon to display.
type MQTTNotifier struct {
	cfg    MQTTConfig
	log    zerolog.Logger
	client paho.Client
}

type mqttPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

func NewMQTTNotifier(cfg MQTTConfig, log zerolog.Logger) *MQTTNotifier {
	if cfg.ClientID == "" {
		cfg.ClientID = "communicator-" + uuid.NewString()[:8]
	}
	mn := &MQTTNotifier{cfg: cfg, log: log.With().Str("component", "mqtt notifier").Logger()}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			mn.log.Warn().Err(err).Msg("Lost connection to MQTT broker")
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			mn.log.Debug().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	mn.client = paho.NewClient(opts)
	return mn
}

func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrMQTTTimeout, ctx.Err())
	}
}

func (mn *MQTTNotifier) Connect(ctx context.Context) error {
	if mn.cfg.Broker == "" {
		return errors.New("MQTT broker URL is required")
	}
	if err := waitToken(ctx, mn.client.Connect()); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

func (mn *MQTTNotifier) Notify(ctx context.Context, title, body string) error {
	if !mn.client.IsConnected() {
		return ErrMQTTNotConnected
	}
	payload, err := json.Marshal(&mqttPayload{Title: title, Body: body, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	if err = waitToken(ctx, mn.client.Publish(mn.cfg.Topic, mn.cfg.QoS, false, payload)); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (mn *MQTTNotifier) Close() {
	if mn.client.IsConnected() {
		mn.client.Disconnect(1000)
	}
}
