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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// Inventory is the device configuration as stored in the inventory file.
type Inventory struct {
	AudioDevices []DeviceInfo `yaml:"audio_devices"`
	VideoDevices []DeviceInfo `yaml:"video_devices"`
	Selected     struct {
		Capture      string `yaml:"capture"`
		Playback     string `yaml:"playback"`
		Notify       string `yaml:"notify"`
		VideoCapture string `yaml:"video_capture"`
	} `yaml:"selected"`
}

func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device inventory: %w", err)
	}
	var inv Inventory
	if err = yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse device inventory: %w", err)
	}
	return &inv, nil
}

func findDevice(devices []DeviceInfo, locator string) *DeviceInfo {
	if locator == "" {
		return nil
	}
	idx := slices.IndexFunc(devices, func(di DeviceInfo) bool { return di.Locator == locator })
	if idx < 0 {
		return &DeviceInfo{Locator: locator}
	}
	dev := devices[idx]
	return &dev
}

func sameLocators(a, b []DeviceInfo) bool {
	return slices.EqualFunc(a, b, func(x, y DeviceInfo) bool { return x.Locator == y.Locator })
}

// Diff returns the property changes that turn old into inv. A nil old
// inventory is treated as empty.
func (inv *Inventory) Diff(old *Inventory) []PropertyChange {
	if old == nil {
		old = &Inventory{}
	}
	var changes []PropertyChange
	if !sameLocators(old.AudioDevices, inv.AudioDevices) {
		changes = append(changes, PropertyChange{Property: PropAudioDevices, OldDevices: old.AudioDevices, NewDevices: inv.AudioDevices})
	}
	if !sameLocators(old.VideoDevices, inv.VideoDevices) {
		changes = append(changes, PropertyChange{Property: PropVideoDevices, OldDevices: old.VideoDevices, NewDevices: inv.VideoDevices})
	}
	selection := func(prop Property, oldLocator, newLocator string, oldList, newList []DeviceInfo) {
		if oldLocator != newLocator {
			changes = append(changes, PropertyChange{
				Property:    prop,
				OldSelected: findDevice(oldList, oldLocator),
				NewSelected: findDevice(newList, newLocator),
			})
		}
	}
	selection(PropCaptureDevice, old.Selected.Capture, inv.Selected.Capture, old.AudioDevices, inv.AudioDevices)
	selection(PropPlaybackDevice, old.Selected.Playback, inv.Selected.Playback, old.AudioDevices, inv.AudioDevices)
	selection(PropNotifyDevice, old.Selected.Notify, inv.Selected.Notify, old.AudioDevices, inv.AudioDevices)
	selection(PropVideoCaptureDevice, old.Selected.VideoCapture, inv.Selected.VideoCapture, old.VideoDevices, inv.VideoDevices)
	return changes
}

type BatchHandler func(ctx context.Context, changes []PropertyChange)

// InventoryWatcher reports changes to a device inventory file.
type InventoryWatcher struct {
	path     string
	log      zerolog.Logger
	handlers []BatchHandler

	lock    sync.Mutex
	current *Inventory
}

func NewInventoryWatcher(path string, log zerolog.Logger, handlers ...BatchHandler) *InventoryWatcher {
	return &InventoryWatcher{
		path:     path,
		log:      log.With().Str("component", "device inventory").Str("path", path).Logger(),
		handlers: handlers,
	}
}

// AddListener feeds batches to the listener.
func (iw *InventoryWatcher) AddListener(listener *Listener) {
	iw.handlers = append(iw.handlers, func(ctx context.Context, changes []PropertyChange) {
		listener.HandleBatch(ctx, changes)
	})
}

// Prime loads the current inventory without reporting it as a change.
func (iw *InventoryWatcher) Prime() error {
	inv, err := LoadInventory(iw.path)
	if err != nil {
		return err
	}
	iw.lock.Lock()
	iw.current = inv
	iw.lock.Unlock()
	return nil
}

// Reload reads the inventory file and dispatches the differences to the
// previously loaded version.
func (iw *InventoryWatcher) Reload(ctx context.Context) ([]PropertyChange, error) {
	inv, err := LoadInventory(iw.path)
	if err != nil {
		return nil, err
	}
	iw.lock.Lock()
	changes := inv.Diff(iw.current)
	iw.current = inv
	iw.lock.Unlock()
	if len(changes) == 0 {
		return nil, nil
	}
	iw.log.Debug().Int("change_count", len(changes)).Msg("Device inventory changed")
	for _, handler := range iw.handlers {
		handler(ctx, changes)
	}
	return changes, nil
}

// Watch blocks until the context is canceled, reloading the inventory
// whenever the file is written or replaced.
func (iw *InventoryWatcher) Watch(ctx context.Context) error {
	if err := iw.Prime(); err != nil {
		iw.log.Warn().Err(err).Msg("Failed to load initial device inventory")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()
	// Editors and atomic writes replace the file, so watch the directory.
	dir, file := filepath.Split(iw.path)
	if dir == "" {
		dir = "."
	}
	if err = watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	iw.log.Info().Msg("Watching device inventory")
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(evt.Name) != file || !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			if _, err := iw.Reload(ctx); err != nil {
				iw.log.Warn().Err(err).Stringer("op", evt.Op).Msg("Failed to reload device inventory")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			iw.log.Warn().Err(err).Msg("File watcher error")
		}
	}
}
