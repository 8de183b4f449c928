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

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"time"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/util/dbutil"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"

	"go.mau.fi/communicator/pkg/contactfilter"
	"go.mau.fi/communicator/pkg/devicenotify"
)

//go:embed example-config.yaml
var ExampleConfig string

type Config struct {
	Database      dbutil.Config       `yaml:"database"`
	ContactList   ContactListConfig   `yaml:"contact_list"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Devices       DevicesConfig       `yaml:"devices"`
	API           APIConfig           `yaml:"api"`
	Logging       zeroconfig.Config   `yaml:"logging"`
}

type ContactListConfig struct {
	CallingEnabled    bool   `yaml:"calling_enabled"`
	QAMode            bool   `yaml:"qa_mode"`
	ShowOffline       bool   `yaml:"show_offline"`
	DirectInsertLimit int    `yaml:"direct_insert_limit"`
	PhoneRegion       string `yaml:"phone_region"`
}

func (clc *ContactListConfig) FilterOptions() contactfilter.Options {
	return contactfilter.Options{CallingEnabled: clc.CallingEnabled, QAMode: clc.QAMode}
}

type NotificationBackend string

const (
	BackendLog  NotificationBackend = "log"
	BackendMQTT NotificationBackend = "mqtt"
	BackendNone NotificationBackend = "none"
)

type NotificationsConfig struct {
	Backend    NotificationBackend     `yaml:"backend"`
	WindowStr  string                  `yaml:"window"`
	MaxRepeats int                     `yaml:"max_repeats"`
	MQTT       devicenotify.MQTTConfig `yaml:"mqtt"`

	Window time.Duration `yaml:"-"`
}

type umNotificationsConfig NotificationsConfig

func (nc *NotificationsConfig) UnmarshalYAML(node *yaml.Node) error {
	err := node.Decode((*umNotificationsConfig)(nc))
	if err != nil {
		return err
	}
	if nc.WindowStr != "" {
		nc.Window, err = time.ParseDuration(nc.WindowStr)
		if err != nil {
			return fmt.Errorf("invalid notifications.window: %w", err)
		}
	}
	return nil
}

type DevicesConfig struct {
	InventoryFile string `yaml:"inventory_file"`
}

type APIConfig struct {
	Listen        string `yaml:"listen"`
	SharedSecret  string `yaml:"shared_secret"`
	PublicMetrics bool   `yaml:"public_metrics"`
}

// Upgrade merges the values of a user config into the example config.
func Upgrade(data []byte) ([]byte, error) {
	var base, cfg yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &base); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	} else if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	Upgrader.DoUpgrade(up.NewHelper(&base, &cfg))
	return yaml.Marshal(&base)
}

// Parse reads a config on top of the defaults from the example config.
func Parse(data []byte) (*Config, error) {
	upgraded, err := Upgrade(data)
	if err != nil {
		return nil, err
	}
	return parseUpgraded(upgraded)
}

func parseUpgraded(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, cfg.Validate()
}

// Load reads the config file at path, upgrading it to the current layout.
// If save is set, the upgraded config is written back, which also persists
// a generated shared secret. An empty path loads the example config as-is.
func Load(path string, save bool) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}
	upgraded, _, err := up.Do(path, save, Upgrader)
	if err != nil {
		return nil, err
	}
	return parseUpgraded(upgraded)
}

func (cfg *Config) Validate() error {
	switch cfg.Database.Type {
	case "sqlite3", "sqlite3-fk-wal", "postgres":
	default:
		return fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
	if cfg.ContactList.DirectInsertLimit < 0 {
		return errors.New("contact_list.direct_insert_limit must not be negative")
	} else if len(cfg.ContactList.PhoneRegion) != 2 {
		return errors.New("contact_list.phone_region must be a two-letter region code")
	}
	switch cfg.Notifications.Backend {
	case BackendLog, BackendNone:
	case BackendMQTT:
		if cfg.Notifications.MQTT.Broker == "" {
			return errors.New("notifications.mqtt.broker is required for the mqtt backend")
		}
	default:
		return fmt.Errorf("unknown notification backend %q", cfg.Notifications.Backend)
	}
	if cfg.Notifications.Window <= 0 {
		return errors.New("notifications.window must be positive")
	} else if cfg.Notifications.MaxRepeats <= 0 {
		return errors.New("notifications.max_repeats must be positive")
	}
	if cfg.API.Listen != "" && cfg.API.SharedSecret == "" {
		return errors.New("api.shared_secret is required when the API is enabled")
	}
	return nil
}
