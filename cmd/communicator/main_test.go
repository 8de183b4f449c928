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
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/communicator/config"
	"go.mau.fi/communicator/pkg/contactfilter"
	"go.mau.fi/communicator/pkg/devicenotify"
)

func testApp(t *testing.T) *app {
	t.Helper()
	cfg, err := config.Parse([]byte("contact_list:\n    show_offline: true\n    qa_mode: true\n"))
	require.NoError(t, err)
	log := zerolog.Nop()
	return &app{cfg: cfg, log: &log}
}

func TestBuildFilter(t *testing.T) {
	a := testApp(t)

	filter, err := buildFilter(a, "  ", false)
	require.NoError(t, err)
	assert.Equal(t, &contactfilter.PresenceFilter{ShowOffline: true}, filter)

	filter, err = buildFilter(a, "alice", false)
	require.NoError(t, err)
	search, ok := filter.(*contactfilter.SearchFilter)
	require.True(t, ok)
	assert.True(t, search.Options.QAMode)
	assert.Equal(t, "alice", search.Pattern.String())

	_, err = buildFilter(a, "[", true)
	assert.Error(t, err)
}

func TestBuildNotifier(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	notifier, closeFn, err := buildNotifier(ctx, &config.NotificationsConfig{Backend: config.BackendNone}, *a.log)
	require.NoError(t, err)
	assert.Nil(t, notifier)
	closeFn()

	notifier, closeFn, err = buildNotifier(ctx, &a.cfg.Notifications, *a.log)
	require.NoError(t, err)
	assert.IsType(t, &devicenotify.LogNotifier{}, notifier)
	closeFn()
}

func runComponentsAsync(ctx context.Context, server *http.Server, watch func(context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- runComponents(ctx, zerolog.Nop(), server, watch)
	}()
	return done
}

func TestRunComponentsStopsOnWatcherFailure(t *testing.T) {
	errInventoryGone := errors.New("inventory gone")
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	done := runComponentsAsync(context.Background(), server, func(ctx context.Context) error {
		return errInventoryGone
	})
	select {
	case err := <-done:
		assert.ErrorIs(t, err, errInventoryGone)
	case <-time.After(5 * time.Second):
		t.Fatal("components kept running after the watcher failed")
	}
	assert.ErrorIs(t, server.ListenAndServe(), http.ErrServerClosed)
}

func TestRunComponentsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var watcherStopped atomic.Bool
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	done := runComponentsAsync(ctx, server, func(ctx context.Context) error {
		<-ctx.Done()
		watcherStopped.Store(true)
		return nil
	})
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("components kept running after cancellation")
	}
	assert.True(t, watcherStopped.Load())
}

func TestRunComponentsListenFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	var watcherStarted atomic.Bool
	err = runComponents(context.Background(), zerolog.Nop(), &http.Server{Addr: taken.Addr().String()}, func(ctx context.Context) error {
		watcherStarted.Store(true)
		return nil
	})
	assert.Error(t, err)
	assert.False(t, watcherStarted.Load())
}
