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
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/util/exerrors"
	"go.mau.fi/util/exzerolog"

	"go.mau.fi/communicator/config"
	"go.mau.fi/communicator/database"
	"go.mau.fi/communicator/pkg/contactlist"
	"go.mau.fi/communicator/pkg/metrics"
)

// Information to find out exactly which commit the binary was built from.
// These are filled at build time with the -X linker flag.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath string
	noUpdate   bool
)

var rootCmd = &cobra.Command{
	Use:          "communicator",
	Short:        "Contact list filtering and device notification core",
	Version:      fmt.Sprintf("%s (commit %s, built at %s)", Tag, Commit, BuildTime),
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file, empty to use the defaults")
	rootCmd.PersistentFlags().BoolVarP(&noUpdate, "no-update", "n", false, "don't save the upgraded config to disk")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(watchDevicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the pieces shared by all subcommands.
type app struct {
	cfg     *config.Config
	log     *zerolog.Logger
	db      *database.Database
	list    *contactlist.List
	metrics *metrics.Metrics
}

func loadConfig() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.Load(configPath, !noUpdate)
	if err != nil {
		return nil, nil, err
	}
	log := exerrors.Must(cfg.Logging.Compile())
	exzerolog.SetupDefaults(log)
	return cfg, log, nil
}

// openApp loads the config, upgrades the database and reads the stored
// contact list into memory.
func openApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ctx = log.WithContext(ctx)
	db, err := database.Open(cfg.Database, log.With().Str("db_section", "main").Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to upgrade database: %w", err)
	}
	list := contactlist.NewList(log.With().Str("component", "contact list").Logger())
	if err = db.LoadList(ctx, list); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		list:    list,
		metrics: metrics.New(),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Err(err).Msg("Failed to close database")
	}
}
