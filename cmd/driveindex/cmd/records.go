package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/templui/driveindex/internal/app"
)

func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <drive-id>",
		Short: "Print record count and total bytes of a drive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driveID, err := parseDrive(args[0])
			if err != nil {
				return err
			}

			return runApp(cmd, func(ctx context.Context, a *app.App) error {
				size, err := a.DriveIndexService.DriveSize(ctx, driveID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), size)
			})
		},
	}
}

func GetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <drive-id> <file-id>",
		Short: "Print a record with its ACL and tags",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			driveID, err := parseDrive(args[0])
			if err != nil {
				return err
			}
			fileID, err := parseFile(args[1])
			if err != nil {
				return err
			}

			return runApp(cmd, func(ctx context.Context, a *app.App) error {
				svc := a.DriveIndexService

				rec, err := svc.GetFile(ctx, driveID, fileID)
				if err != nil {
					return err
				}
				acl, err := svc.Acl(ctx, driveID, fileID)
				if err != nil {
					return err
				}
				tags, err := svc.Tags(ctx, driveID, fileID)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), map[string]any{
					"record": rec,
					"acl":    acl,
					"tags":   tags,
				})
			})
		},
	}
}

func TouchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <drive-id> <file-id>",
		Short: "Mark a record as modified",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			driveID, err := parseDrive(args[0])
			if err != nil {
				return err
			}
			fileID, err := parseFile(args[1])
			if err != nil {
				return err
			}

			return runApp(cmd, func(ctx context.Context, a *app.App) error {
				modified, err := a.DriveIndexService.TouchFile(ctx, driveID, fileID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"modified": modified})
			})
		},
	}
}
