package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/templui/driveindex/internal/app"
	"github.com/templui/driveindex/internal/model"
	"github.com/templui/driveindex/internal/query"
	"github.com/templui/driveindex/internal/timestamp"
)

// filterFlags are shared by every query command.
type filterFlags struct {
	minSecurity int32
	maxSecurity int32
	fileTypes   []int32
	dataTypes   []int32
	senders     []string
	acl         []string
	tagsAny     []string
	tagsAll     []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int32Var(&f.minSecurity, "min-security", model.SecurityGroupOwner, "lowest visible security group")
	flags.Int32Var(&f.maxSecurity, "max-security", model.SecurityGroupAnonymous, "highest visible security group")
	flags.Int32SliceVar(&f.fileTypes, "file-type", nil, "file types to include")
	flags.Int32SliceVar(&f.dataTypes, "data-type", nil, "data types to include")
	flags.StringSliceVar(&f.senders, "sender", nil, "sender ids to include")
	flags.StringSliceVar(&f.acl, "acl", nil, "principals that widen visibility beyond the security range")
	flags.StringSliceVar(&f.tagsAny, "tag", nil, "match records with any of these tags")
	flags.StringSliceVar(&f.tagsAll, "tag-all", nil, "match records with all of these tags")
}

func (f *filterFlags) filter() (query.Filter, error) {
	acl, err := parseUUIDs(f.acl)
	if err != nil {
		return query.Filter{}, err
	}
	tagsAny, err := parseUUIDs(f.tagsAny)
	if err != nil {
		return query.Filter{}, err
	}
	tagsAll, err := parseUUIDs(f.tagsAll)
	if err != nil {
		return query.Filter{}, err
	}

	return query.Filter{
		SecurityRange: query.SecurityRange{Lo: f.minSecurity, Hi: f.maxSecurity},
		FileTypes:     f.fileTypes,
		DataTypes:     f.dataTypes,
		SenderIDs:     f.senders,
		AclAnyOf:      acl,
		TagsAnyOf:     tagsAny,
		TagsAllOf:     tagsAll,
	}, nil
}

type batchOutput struct {
	Records []*model.MainIndexRecord `json:"records"`
	Cursor  string                   `json:"cursor"`
	HasMore bool                     `json:"hasMore"`
}

func QueryCmd() *cobra.Command {
	var (
		ff         filterFlags
		limit      int
		cursor     string
		oldest     bool
		byUserDate bool
		startFile  string
		startTime  string
	)

	cmd := &cobra.Command{
		Use:   "query <drive-id>",
		Short: "Fetch one batch of records; pass the printed cursor to continue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driveID, err := parseDrive(args[0])
			if err != nil {
				return err
			}

			opts := query.BatchOptions{Limit: limit}
			opts.Filter, err = ff.filter()
			if err != nil {
				return err
			}
			opts.Cursor, err = query.DecodeCursor(cursor)
			if err != nil {
				return err
			}
			if oldest {
				opts.Direction = query.OldestFirst
			}
			if byUserDate {
				opts.Ordering = query.ByUserDate
			}

			switch {
			case startFile != "":
				id, err := parseFile(startFile)
				if err != nil {
					return err
				}
				opts.StartPoint = &query.StartPoint{FileID: &id}
			case startTime != "":
				t, err := time.Parse(time.RFC3339, startTime)
				if err != nil {
					return fmt.Errorf("invalid --start-time: %w", err)
				}
				opts.StartPoint = &query.StartPoint{Time: &t}
			}

			return runApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.DriveIndexService.QueryBatch(ctx, driveID, opts)
				if err != nil {
					return err
				}

				token, err := res.Cursor.Encode()
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), batchOutput{
					Records: res.Records,
					Cursor:  token,
					HasMore: res.HasMore,
				})
			})
		},
	}

	ff.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records to return")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor token from a previous call")
	cmd.Flags().BoolVar(&oldest, "oldest", false, "oldest records first")
	cmd.Flags().BoolVar(&byUserDate, "by-user-date", false, "order by user date instead of file id")
	cmd.Flags().StringVar(&startFile, "start-file", "", "start after this file id, ignoring --cursor")
	cmd.Flags().StringVar(&startTime, "start-time", "", "start after this RFC 3339 time, ignoring --cursor")
	cmd.MarkFlagsMutuallyExclusive("start-file", "start-time")

	return cmd
}

func ModifiedCmd() *cobra.Command {
	var (
		ff     filterFlags
		limit  int
		cursor int64
	)

	cmd := &cobra.Command{
		Use:   "modified <drive-id>",
		Short: "Fetch records modified after a cursor tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driveID, err := parseDrive(args[0])
			if err != nil {
				return err
			}

			filter, err := ff.filter()
			if err != nil {
				return err
			}

			return runApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.DriveIndexService.QueryModified(ctx, driveID, query.ModifiedOptions{
					Limit:  limit,
					Cursor: timestamp.UniqueTime(cursor),
					Filter: filter,
				})
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), map[string]any{
					"records": res.Records,
					"cursor":  res.Cursor,
					"hasMore": res.HasMore,
				})
			})
		},
	}

	ff.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records to return")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "modified tick returned by the previous call")

	return cmd
}

// WatchCmd follows a drive: it drains the current contents once and then
// prints records as they are added, one JSON object per line.
func WatchCmd() *cobra.Command {
	var (
		ff       filterFlags
		interval time.Duration
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "watch <drive-id>",
		Short: "Print new records of a drive as they arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driveID, err := parseDrive(args[0])
			if err != nil {
				return err
			}

			filter, err := ff.filter()
			if err != nil {
				return err
			}

			return runApp(cmd, func(ctx context.Context, a *app.App) error {
				opts := query.BatchOptions{Limit: limit, Filter: filter}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					for {
						res, err := a.DriveIndexService.QueryBatch(ctx, driveID, opts)
						if err != nil {
							return err
						}
						for _, rec := range res.Records {
							err = printJSON(cmd.OutOrStdout(), rec)
							if err != nil {
								return err
							}
						}
						opts.Cursor = res.Cursor
						if !res.HasMore {
							break
						}
					}

					select {
					case <-ctx.Done():
						slog.Info("watch stopped", "drive_id", driveID)
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}

	ff.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval")
	cmd.Flags().IntVar(&limit, "limit", 100, "page size per poll")

	return cmd
}
