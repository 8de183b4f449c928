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
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/communicator/pkg/metrics"
)

type notification struct {
	title, body string
}

type recordingNotifier struct {
	sent []notification
	err  error
}

func (rn *recordingNotifier) Notify(_ context.Context, title, body string) error {
	if rn.err != nil {
		return rn.err
	}
	rn.sent = append(rn.sent, notification{title, body})
	return nil
}

var (
	headset = DeviceInfo{Name: "USB Headset", Locator: "alsa:usb-1"}
	builtin = DeviceInfo{Name: "Built-in Audio", Locator: "alsa:hw-0"}
	webcam  = DeviceInfo{Name: "Webcam", Locator: "v4l2:/dev/video0"}
)

func TestListenerComposesBodyWithPendingSelection(t *testing.T) {
	notifier := &recordingNotifier{}
	listener := NewListener(KindAudio, zerolog.Nop(), notifier, nil, metrics.New())
	ctx := context.Background()

	outcome := listener.HandleBatch(ctx, []PropertyChange{{
		Property:    PropCaptureDevice,
		OldSelected: &builtin,
		NewSelected: &headset,
	}})
	assert.Equal(t, OutcomePending, outcome)
	assert.Empty(t, notifier.sent)

	outcome = listener.HandleBatch(ctx, []PropertyChange{
		{Property: PropAudioDevices, OldDevices: []DeviceInfo{builtin}, NewDevices: []DeviceInfo{builtin, headset}},
		{Property: PropVideoDevices, NewDevices: []DeviceInfo{webcam}},
	})
	assert.Equal(t, OutcomeShown, outcome)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Audio device configuration changed", notifier.sent[0].title)
	assert.Equal(t, "Connected: USB Headset\nMicrophone: now using USB Headset", notifier.sent[0].body)

	// Pending selections were flushed with the previous notification.
	outcome = listener.HandleBatch(ctx, []PropertyChange{
		{Property: PropAudioDevices, OldDevices: []DeviceInfo{builtin, headset}, NewDevices: []DeviceInfo{builtin}},
		{Property: PropPlaybackDevice, OldSelected: &headset},
	})
	assert.Equal(t, OutcomeShown, outcome)
	require.Len(t, notifier.sent, 2)
	assert.Equal(t, "Disconnected: USB Headset\nSpeakers: none selected", notifier.sent[1].body)
}

func TestListenerIgnoresOtherKind(t *testing.T) {
	notifier := &recordingNotifier{}
	listener := NewListener(KindVideo, zerolog.Nop(), notifier, nil, nil)
	outcome := listener.HandleBatch(context.Background(), []PropertyChange{
		{Property: PropAudioDevices, NewDevices: []DeviceInfo{headset}},
	})
	assert.Equal(t, OutcomeNone, outcome)

	outcome = listener.HandleBatch(context.Background(), []PropertyChange{
		{Property: PropVideoDevices, NewDevices: []DeviceInfo{webcam}},
	})
	assert.Equal(t, OutcomeShown, outcome)
	assert.Equal(t, "Video device configuration changed", notifier.sent[0].title)
	assert.Equal(t, "Connected: Webcam", notifier.sent[0].body)
}

func TestListenerRateLimitsFlappingDevice(t *testing.T) {
	notifier := &recordingNotifier{}
	limiter, _ := newTestLimiter()
	listener := NewListener(KindAudio, zerolog.Nop(), notifier, limiter, nil)
	plugIn := []PropertyChange{{Property: PropAudioDevices, NewDevices: []DeviceInfo{headset}}}
	for i := 0; i < 6; i++ {
		assert.Equal(t, OutcomeShown, listener.HandleBatch(context.Background(), plugIn))
	}
	assert.Equal(t, OutcomeSuppressed, listener.HandleBatch(context.Background(), plugIn))
	assert.Len(t, notifier.sent, 6)
}

func TestListenerWithoutNotifier(t *testing.T) {
	listener := NewListener(KindAudio, zerolog.Nop(), nil, nil, nil)
	outcome := listener.HandleBatch(context.Background(), []PropertyChange{
		{Property: PropAudioDevices, NewDevices: []DeviceInfo{headset}},
	})
	assert.Equal(t, OutcomeDisabled, outcome)
}

func TestListenerNotifierFailure(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("bus unavailable")}
	listener := NewListener(KindAudio, zerolog.Nop(), notifier, nil, nil)
	outcome := listener.HandleBatch(context.Background(), []PropertyChange{
		{Property: PropAudioDevices, NewDevices: []DeviceInfo{headset}},
	})
	assert.Equal(t, OutcomeFailed, outcome)
}
