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

// Package devicenotify tells the user about connected and disconnected audio
// and video devices without flooding them when hardware flaps.
package devicenotify

import (
	"context"
)

type DeviceInfo struct {
	Name    string `yaml:"name" json:"name"`
	Locator string `yaml:"locator" json:"locator"`
}

func (di DeviceInfo) String() string {
	if di.Name != "" {
		return di.Name
	}
	return di.Locator
}

type Property string

const (
	PropAudioDevices Property = "audio_devices"
	PropVideoDevices Property = "video_devices"

	PropCaptureDevice      Property = "capture_device"
	PropPlaybackDevice     Property = "playback_device"
	PropNotifyDevice       Property = "notify_device"
	PropVideoCaptureDevice Property = "video_capture_device"
)

// IsDeviceList returns true for properties whose values are the list of
// available devices rather than a single selected device.
func (p Property) IsDeviceList() bool {
	return p == PropAudioDevices || p == PropVideoDevices
}

// PropertyChange is one change reported by the device configuration.
// Device list properties use OldDevices and NewDevices, selection properties
// use OldSelected and NewSelected.
type PropertyChange struct {
	Property    Property
	OldDevices  []DeviceInfo
	NewDevices  []DeviceInfo
	OldSelected *DeviceInfo
	NewSelected *DeviceInfo
}

// Notifier delivers a popup notification to the user.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

type NotifierFunc func(ctx context.Context, title, body string) error

func (fn NotifierFunc) Notify(ctx context.Context, title, body string) error {
	return fn(ctx, title, body)
}
