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


package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go.mau.fi/communicator/config"
	"go.mau.fi/communicator/pkg/devicenotify"
	"go.mau.fi/communicator/pkg/metrics"
)

var watchDevicesCmd = &cobra.Command{
	Use:   "watch-devices",
	Short: "Watch the device inventory file and send device change notifications",
	Args:  cobra.NoArgs,
	RunE:  runWatchDevices,
}

// buildNotifier returns the configured notifier and a function that releases
// it. A nil notifier disables notifications.
func buildNotifier(ctx context.Context, cfg *config.NotificationsConfig, log zerolog.Logger) (devicenotify.Notifier, func(), error) {
	switch cfg.Backend {
	case config.BackendNone:
		return nil, func() {}, nil
	case config.BackendMQTT:
		notifier := devicenotify.NewMQTTNotifier(cfg.MQTT, log)
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := notifier.Connect(connectCtx); err != nil {
			return nil, nil, err
		}
		return notifier, notifier.Close, nil
	default:
		return &devicenotify.LogNotifier{Log: log.With().Str("component", "notifications").Logger()}, func() {}, nil
	}
}

// newDeviceWatcher creates an inventory watcher feeding an audio and a video
// listener that share one rate limiter.
func newDeviceWatcher(cfg *config.Config, log zerolog.Logger, notifier devicenotify.Notifier, m *metrics.Metrics) *devicenotify.InventoryWatcher {
	limiter := devicenotify.NewRateLimiter(cfg.Notifications.Window, cfg.Notifications.MaxRepeats)
	watcher := devicenotify.NewInventoryWatcher(cfg.Devices.InventoryFile, log)
	watcher.AddListener(devicenotify.NewListener(devicenotify.KindAudio, log, notifier, limiter, m))
	watcher.AddListener(devicenotify.NewListener(devicenotify.KindVideo, log, notifier, limiter, m))
	return watcher
}

func runWatchDevices(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	} else if cfg.Devices.InventoryFile == "" {
		return errors.New("devices.inventory_file is not set")
	}
	ctx, stop := signal.NotifyContext(log.WithContext(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier, closeNotifier, err := buildNotifier(ctx, &cfg.Notifications, *log)
	if err != nil {
		return fmt.Errorf("failed to set up notifications: %w", err)
	}
	defer closeNotifier()
	return newDeviceWatcher(cfg, *log, notifier, metrics.New()).Watch(ctx)
}
