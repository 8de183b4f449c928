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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.mau.fi/communicator/pkg/contactlist/vcardimport"
)

var importCmd = &cobra.Command{
	Use:   "import <file.vcf>",
	Short: "Import contacts from a vCard file into the stored contact list",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	ctx := a.log.WithContext(cmd.Context())
	result, err := vcardimport.Import(ctx, a.list, file)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", args[0], err)
	}
	if err = a.db.SaveList(ctx, a.list); err != nil {
		return fmt.Errorf("failed to save contact list: %w", err)
	}
	a.log.Info().
		Int("imported", result.Imported).
		Int("duplicates", result.Duplicates).
		Int("skipped", result.Skipped).
		Msg("Imported vCard file")
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d imported, %d duplicates, %d skipped\n", result.Imported, result.Duplicates, result.Skipped)
	return nil
}
