package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/wedcards/core/ordering"
)

// reporter is the part of the ordering manager the maintenance commands use
type reporter interface {
	Validate(ctx context.Context, groupID uuid.UUID) (ordering.Report, error)
	Fix(ctx context.Context, groupID uuid.UUID) (bool, error)
	Stats(ctx context.Context, groupID uuid.UUID) (ordering.Stats, error)
}

// journal keeps the outcome of the last maintenance run per wedding
type journal interface {
	Read(ctx context.Context, key string, value interface{}) (time.Time, error)
	Write(ctx context.Context, key string, value interface{}) error
}

// lastFix is the journal entry of the fix command
type lastFix struct {
	Changed bool `json:"changed"`
}

// cli carries the configuration into the commands. Both fields are filled lazily
// from the environment when nil.
type cli struct {
	service *Service
	// contents opens the ordered contents with the maintenance journal and
	// returns a function to close them again
	contents func() (reporter, journal, func(), error)
}

func (c *cli) configure(cmd *cobra.Command, args []string) error {
	if c.service == nil {
		service, err := loadService()
		if err != nil {
			return err
		}
		c.service = service
	}
	if c.contents == nil {
		c.contents = func() (reporter, journal, func(), error) {
			components, err := c.service.open()
			if err != nil {
				return nil, nil, nil, err
			}
			return components.contents, components.maintenance, components.Close, nil
		}
	}
	return c.service.initLogger()
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:               "wedcards",
		Short:             "wedcards serves ordered wedding contents and RSVP forms",
		SilenceUsage:      true,
		PersistentPreRunE: c.configure,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.service.serve(cmd.Context())
		},
	})

	root.AddCommand(c.groupCommand("validate", "Report gaps and duplicates in the positions of a wedding's contents",
		func(ctx context.Context, r reporter, j journal, weddingID uuid.UUID) (interface{}, error) {
			report, err := r.Validate(ctx, weddingID)
			if err != nil {
				return nil, err
			}
			if !report.IsValid {
				return report, fmt.Errorf("the contents of wedding %s are not in order", weddingID)
			}
			return report, nil
		}))

	root.AddCommand(c.groupCommand("fix", "Renumber a wedding's contents to 1..N, keeping their order",
		func(ctx context.Context, r reporter, j journal, weddingID uuid.UUID) (interface{}, error) {
			changed, err := r.Fix(ctx, weddingID)
			if err != nil {
				return nil, err
			}
			if err = j.Write(ctx, weddingID.String(), lastFix{Changed: changed}); err != nil {
				return nil, err
			}
			return lastFix{Changed: changed}, nil
		}))

	root.AddCommand(c.groupCommand("stats", "Summarize a wedding's contents",
		func(ctx context.Context, r reporter, j journal, weddingID uuid.UUID) (interface{}, error) {
			stats, err := r.Stats(ctx, weddingID)
			if err != nil {
				return nil, err
			}
			var fix lastFix
			fixedAt, err := j.Read(ctx, weddingID.String(), &fix)
			if err != nil {
				return nil, err
			}
			result := struct {
				ordering.Stats
				LastFix *time.Time `json:"last_fix,omitempty"`
			}{Stats: stats}
			if !fixedAt.IsZero() {
				result.LastFix = &fixedAt
			}
			return result, nil
		}))

	return root
}

// groupCommand creates a command which takes a wedding id, runs fn and prints its
// result as JSON. fn returns a nil result on failure.
func (c *cli) groupCommand(use, short string, fn func(ctx context.Context, r reporter, j journal, weddingID uuid.UUID) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <wedding_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			weddingID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid wedding id '%s': %w", args[0], err)
			}
			r, j, closer, err := c.contents()
			if err != nil {
				return err
			}
			defer closer()

			result, err := fn(cmd.Context(), r, j, weddingID)
			if result != nil {
				if perr := printJSON(cmd.OutOrStdout(), result); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	j, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(j))
	return err
}
