// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"github.com/spf13/cobra"
	"github.com/zeebo/errs/v2"

	"storj.io/ekeyd/archive"
)

func newArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect event archives written by the file destination",
	}

	cat := &cobra.Command{
		Use:   "cat DIR|FILE",
		Short: "Print archived events",
		Args:  cobra.ExactArgs(1),
	}
	format := cat.Flags().StringP("format", "f", "json", "output format: json or csv")
	protocolFilter := cat.Flags().String("only", "", "print only events of this protocol")
	cat.RunE = func(cmd *cobra.Command, args []string) error {
		var records []*archive.Record
		err := archive.Walk(args[0], func(r *archive.Record) error {
			if *protocolFilter == "" || r.Protocol == *protocolFilter {
				records = append(records, r)
			}
			return nil
		})
		if err != nil {
			return err
		}

		switch *format {
		case "json":
			return archive.WriteJSON(cmd.OutOrStdout(), records)
		case "csv":
			return archive.WriteCSV(cmd.OutOrStdout(), records)
		default:
			return errs.Errorf("unknown format %q", *format)
		}
	}

	cmd.AddCommand(cat)
	return cmd
}
