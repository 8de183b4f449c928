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
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"go.mau.fi/communicator/pkg/metrics"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

var selectionLabels = map[Property]string{
	PropCaptureDevice:      "Microphone",
	PropPlaybackDevice:     "Speakers",
	PropNotifyDevice:       "Notifications",
	PropVideoCaptureDevice: "Camera",
}

func (k Kind) deviceListProperty() Property {
	if k == KindVideo {
		return PropVideoDevices
	}
	return PropAudioDevices
}

func (k Kind) handles(prop Property) bool {
	switch prop {
	case PropAudioDevices, PropCaptureDevice, PropPlaybackDevice, PropNotifyDevice:
		return k == KindAudio
	case PropVideoDevices, PropVideoCaptureDevice:
		return k == KindVideo
	default:
		return false
	}
}

func (k Kind) title() string {
	if k == KindVideo {
		return "Video device configuration changed"
	}
	return "Audio device configuration changed"
}

// Outcome of handling one batch.
type Outcome string

const (
	OutcomeNone       Outcome = "none"
	OutcomePending    Outcome = "pending"
	OutcomeShown      Outcome = "shown"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeDisabled   Outcome = "disabled"
	OutcomeFailed     Outcome = "failed"
)

// Listener turns device configuration changes of one kind into notifications.
type Listener struct {
	kind     Kind
	log      zerolog.Logger
	notifier Notifier
	limiter  *RateLimiter
	metrics  *metrics.Metrics

	lock    sync.Mutex
	pending []PropertyChange
}

// NewListener creates a listener. A nil notifier makes notifications no-ops.
func NewListener(kind Kind, log zerolog.Logger, notifier Notifier, limiter *RateLimiter, m *metrics.Metrics) *Listener {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultWindow, DefaultMaxRepeats)
	}
	return &Listener{
		kind:     kind,
		log:      log.With().Str("device_kind", string(kind)).Logger(),
		notifier: notifier,
		limiter:  limiter,
		metrics:  m,
	}
}

func (l *Listener) Kind() Kind {
	return l.kind
}

// HandleBatch processes the changes reported together by the device
// configuration. Selection changes are held until a device is added or
// removed, then included in that notification.
func (l *Listener) HandleBatch(ctx context.Context, changes []PropertyChange) Outcome {
	l.lock.Lock()
	var added, removed []DeviceInfo
	for _, change := range changes {
		if !l.kind.handles(change.Property) {
			continue
		}
		l.metrics.TrackDeviceChange(string(change.Property))
		if change.Property == l.kind.deviceListProperty() {
			a, r := diffDevices(change.OldDevices, change.NewDevices)
			added = append(added, a...)
			removed = append(removed, r...)
		} else {
			l.pending = append(l.pending, change)
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		hasPending := len(l.pending) > 0
		l.lock.Unlock()
		if hasPending {
			return OutcomePending
		}
		return OutcomeNone
	}
	body := composeBody(added, removed, l.pending)
	l.pending = nil
	l.lock.Unlock()

	if l.notifier == nil {
		l.metrics.TrackNotification(string(OutcomeDisabled))
		return OutcomeDisabled
	}
	if !l.limiter.Allow(body) {
		l.log.Debug().Str("body", body).Msg("Suppressing repeated device notification")
		l.metrics.TrackNotification(string(OutcomeSuppressed))
		return OutcomeSuppressed
	}
	if err := l.notifier.Notify(ctx, l.kind.title(), body); err != nil {
		l.log.Err(err).Msg("Failed to deliver device notification")
		l.metrics.TrackNotification(string(OutcomeFailed))
		return OutcomeFailed
	}
	l.metrics.TrackNotification(string(OutcomeShown))
	return OutcomeShown
}

// diffDevices compares device lists by locator and keeps the order of the
// list each device came from.
func diffDevices(oldDevices, newDevices []DeviceInfo) (added, removed []DeviceInfo) {
	hasLocator := func(list []DeviceInfo, locator string) bool {
		return slices.ContainsFunc(list, func(di DeviceInfo) bool { return di.Locator == locator })
	}
	for _, dev := range newDevices {
		if !hasLocator(oldDevices, dev.Locator) {
			added = append(added, dev)
		}
	}
	for _, dev := range oldDevices {
		if !hasLocator(newDevices, dev.Locator) {
			removed = append(removed, dev)
		}
	}
	return
}

func composeBody(added, removed []DeviceInfo, pending []PropertyChange) string {
	var lines []string
	for _, dev := range added {
		lines = append(lines, fmt.Sprintf("Connected: %s", dev))
	}
	for _, dev := range removed {
		lines = append(lines, fmt.Sprintf("Disconnected: %s", dev))
	}
	for _, change := range pending {
		label := selectionLabels[change.Property]
		if change.NewSelected == nil {
			lines = append(lines, fmt.Sprintf("%s: none selected", label))
		} else {
			lines = append(lines, fmt.Sprintf("%s: now using %s", label, change.NewSelected))
		}
	}
	return strings.Join(lines, "\n")
}
