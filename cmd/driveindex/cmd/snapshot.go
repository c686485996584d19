package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/templui/driveindex/internal/app"
	"github.com/templui/driveindex/internal/query"
)

func ExportCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "export <drive-id>",
		Short: "Write a drive snapshot (JSON lines) to snapshot storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driveID, err := parseDrive(args[0])
			if err != nil {
				return err
			}

			cursor, err := query.DecodeCursor(since)
			if err != nil {
				return err
			}

			return runApp(cmd, func(ctx context.Context, a *app.App) error {
				snap, err := a.DriveIndexService.ExportDrive(ctx, driveID, cursor)
				if err != nil {
					return err
				}

				token, err := snap.Cursor.Encode()
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), map[string]any{
					"path":    snap.Path,
					"url":     snap.URL,
					"records": snap.Records,
					"bytes":   snap.Bytes,
					"since":   token,
				})
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "cursor printed by a previous export; only newer records are written")
	return cmd
}

func ImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot.jsonl>",
		Short: "Upsert every record of a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open snapshot: %w", err)
			}
			defer f.Close()

			return runApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.DriveIndexService.ImportSnapshot(ctx, f)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"records": n})
			})
		},
	}
}
