package commands

import (
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
)

// NewEventsCmd creates the events command group
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the project activity log",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newEventsListCmd())
	cmd.AddCommand(newEventsTailCmd())

	namespaceIndex(cmd)
	return cmd
}

// fetchEvents reads the newest events of the scoped project (all projects
// when unscoped) and keeps those matching kind with an id above since.
// The result is oldest first.
func fetchEvents(cmd *cobra.Command, kind string, since int64, limit int) ([]*models.Event, error) {
	var events []*models.Event
	err := withDB(func(db *DB) error {
		ev, err := store.ListEvents(cmdContext(cmd), db, resolveProjectID(cmd), limit)
		if err != nil {
			return err
		}
		for _, e := range ev {
			if e.ID <= since || (kind != "" && e.Kind != kind) {
				continue
			}
			events = append(events, e)
		}
		return nil
	})
	slices.Reverse(events)
	return events, err
}

func newEventsListCmd() *cobra.Command {
	var (
		kind  string
		limit int
		asc   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent events (scoped by --project when set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := fetchEvents(cmd, kind, 0, limit)
			if err != nil {
				return err
			}
			if !asc {
				slices.Reverse(events)
			}

			type resp struct {
				Project string          `json:"project,omitempty"`
				Kind    string          `json:"kind,omitempty"`
				Count   int             `json:"count"`
				Events  []*models.Event `json:"events"`
			}
			return output.PrintSuccess(resp{
				Project: resolveProjectID(cmd),
				Kind:    kind,
				Count:   len(events),
				Events:  events,
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max events")
	cmd.Flags().BoolVar(&asc, "asc", false, "Sort oldest first (default newest first)")
	return cmd
}

func newEventsTailCmd() *cobra.Command {
	var (
		kind     string
		limit    int
		since    int64
		interval time.Duration
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Poll and print new events as JSON Lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			for {
				events, err := fetchEvents(cmd, kind, since, limit)
				if err != nil {
					return err
				}
				for _, e := range events {
					since = e.ID
					if err := output.Print(e); err != nil {
						return err
					}
				}
				if once {
					return nil
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max events per poll")
	cmd.Flags().Int64Var(&since, "since-id", 0, "Only events with id > since-id")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Poll interval")
	cmd.Flags().BoolVar(&once, "once", false, "Fetch once and exit")
	return cmd
}
