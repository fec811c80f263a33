package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
)

// NewArtifactCmd creates the artifact command group
func NewArtifactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Inspect and delete task outputs",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newArtifactListCmd())
	cmd.AddCommand(newArtifactDeleteCmd())

	namespaceIndex(cmd)
	return cmd
}

func newArtifactListCmd() *cobra.Command {
	var (
		taskID  string
		content bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts newest first (scoped by --project and --task when set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var artifacts []*models.OutputArtifact
			if err := withDB(func(db *DB) error {
				a, err := store.ListArtifacts(cmdContext(cmd), db, resolveProjectID(cmd), taskID)
				if err != nil {
					return err
				}
				artifacts = a
				return nil
			}); err != nil {
				return err
			}
			if !content {
				for _, a := range artifacts {
					a.Content = ""
				}
			}

			type resp struct {
				Count     int                      `json:"count"`
				Artifacts []*models.OutputArtifact `json:"artifacts"`
			}
			return output.PrintSuccess(resp{Count: len(artifacts), Artifacts: artifacts})
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "Only artifacts of this task")
	cmd.Flags().BoolVar(&content, "content", false, "Include artifact content")
	return cmd
}

func newArtifactDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(cmd, args)
			if err != nil {
				return cmdErr(err)
			}
			if err := withDB(func(db *DB) error {
				return store.DeleteArtifact(cmdContext(cmd), db, id)
			}); err != nil {
				return err
			}

			type resp struct {
				ID      string `json:"id"`
				Deleted bool   `json:"deleted"`
			}
			return output.PrintSuccess(resp{ID: id, Deleted: true})
		},
	}

	cmd.Flags().String("id", "", "Artifact ID")
	return cmd
}
