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
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go.mau.fi/communicator/pkg/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API and the device watcher",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, stop := signal.NotifyContext(a.log.WithContext(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := newSource(a)
	defer source.Dispatcher().Stop()
	defer source.Stop()
	source.ApplyFilter(ctx, source.Filter())

	notifier, closeNotifier, err := buildNotifier(ctx, &a.cfg.Notifications, *a.log)
	if err != nil {
		a.log.Err(err).Msg("Failed to set up notifications, device notifications disabled")
		notifier, closeNotifier = nil, func() {}
	}
	defer closeNotifier()

	var watch func(context.Context) error
	if a.cfg.Devices.InventoryFile != "" {
		watch = newDeviceWatcher(a.cfg, *a.log, notifier, a.metrics).Watch
	}
	var server *http.Server
	if a.cfg.API.Listen != "" {
		server = &http.Server{
			Addr: a.cfg.API.Listen,
			Handler: api.New(a.log.With().Str("component", "api").Logger(), api.Options{
				SharedSecret:  a.cfg.API.SharedSecret,
				PublicMetrics: a.cfg.API.PublicMetrics,
				Filter:        a.cfg.ContactList.FilterOptions(),
				ShowOffline:   a.cfg.ContactList.ShowOffline,
				PhoneRegion:   a.cfg.ContactList.PhoneRegion,
			}, a.list, source, a.metrics).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	runErr := runComponents(ctx, *a.log, server, watch)
	if saveErr := a.db.SaveList(a.log.WithContext(context.Background()), a.list); saveErr != nil {
		a.log.Err(saveErr).Msg("Failed to save contact list")
	}
	return runErr
}

// runComponents runs the API server and the device watcher until ctx is done
// or one of them fails. The first failure stops the others. Either may be nil.
func runComponents(ctx context.Context, log zerolog.Logger, server *http.Server, watch func(context.Context) error) error {
	var listener net.Listener
	if server != nil {
		var err error
		listener, err = net.Listen("tcp", server.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen for control API: %w", err)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	if watch != nil {
		g.Go(func() error {
			return watch(gctx)
		})
	}
	if server != nil {
		log.Info().Stringer("address", listener.Addr()).Msg("Starting control API")
		g.Go(func() error {
			if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control API failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Err(err).Msg("Failed to shut down control API")
			}
			return nil
		})
	}
	<-gctx.Done()
	log.Info().Msg("Shutting down")
	err := g.Wait()
	if err != nil {
		log.Err(err).Msg("Component failed")
	}
	return err
}
