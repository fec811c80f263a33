package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
)

// NewAskUserCmd creates the ask-user command group
func NewAskUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask-user",
		Short: "Inspect questions tasks are waiting on",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newAskUserListCmd())

	namespaceIndex(cmd)
	return cmd
}

func newAskUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open questions of the project's awaiting tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}

			var queries []models.AskUserQuery
			if err := withDB(func(db *DB) error {
				ctx := cmdContext(cmd)
				if _, err := store.GetProject(ctx, db, projectID); err != nil {
					return err
				}
				q, err := store.ListAskUserQueries(ctx, db, projectID)
				if err != nil {
					return err
				}
				queries = q
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count   int                   `json:"count"`
				Queries []models.AskUserQuery `json:"queries"`
			}
			return output.PrintSuccess(resp{Count: len(queries), Queries: queries})
		},
	}
}
