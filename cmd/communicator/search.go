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
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go.mau.fi/communicator/pkg/contactfilter"
	"go.mau.fi/communicator/pkg/uimodel"
)

var (
	searchRegex   bool
	searchTimeout time.Duration
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Filter the stored contact list and print the matching tree",
	Long:  "Runs one filter query against the stored contact list. Without text, the presence filter is used.",
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().BoolVarP(&searchRegex, "regex", "r", false, "treat the search text as a regular expression")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", 30*time.Second, "maximum time to wait for the query")
}

func newSource(a *app) *uimodel.Source {
	dispatcher := uimodel.NewDispatcher(a.log.With().Str("component", "dispatcher").Logger(), 256)
	dispatcher.Start()
	filter := &contactfilter.PresenceFilter{ShowOffline: a.cfg.ContactList.ShowOffline}
	source := uimodel.NewSource(a.log.With().Str("component", "ui source").Logger(), a.list, dispatcher, filter, a.metrics)
	if a.cfg.ContactList.DirectInsertLimit > 0 {
		source.DirectInsertLimit = a.cfg.ContactList.DirectInsertLimit
	}
	source.Start()
	return source
}

func buildFilter(a *app, text string, regex bool) (contactfilter.ContactFilter, error) {
	opts := a.cfg.ContactList.FilterOptions()
	if strings.TrimSpace(text) == "" {
		return &contactfilter.PresenceFilter{ShowOffline: a.cfg.ContactList.ShowOffline}, nil
	} else if !regex {
		return contactfilter.NewSearchFilter(text, opts), nil
	}
	pattern, err := contactfilter.CompileRegexPattern(text)
	if err != nil {
		return nil, err
	}
	return &contactfilter.SearchFilter{Pattern: pattern, Options: opts}, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	filter, err := buildFilter(a, strings.Join(args, " "), searchRegex)
	if err != nil {
		return err
	}
	source := newSource(a)
	defer source.Dispatcher().Stop()
	defer source.Stop()

	ctx, cancel := context.WithTimeout(a.log.WithContext(cmd.Context()), searchTimeout)
	defer cancel()
	query := source.ApplyFilter(ctx, filter)
	status, err := query.Wait(ctx)
	if err != nil {
		return fmt.Errorf("query did not finish: %w", err)
	}
	if err = source.Sync(ctx); err != nil {
		return err
	}
	rows, err := source.Snapshot(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, row := range rows {
		line := strings.Repeat("  ", row.Depth) + row.Name
		if row.Presence != "" {
			line += " (" + row.Presence + ")"
		}
		_, _ = fmt.Fprintln(out, line)
	}
	_, _ = fmt.Fprintf(out, "%d matches, query %s\n", query.ResultCount(), status)
	return nil
}
