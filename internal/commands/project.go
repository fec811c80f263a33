package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
)

// NewProjectCmd creates the project command group
func NewProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectShowCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectHistoryCmd())

	namespaceIndex(cmd)
	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project and its workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			desc, _ := cmd.Flags().GetString("desc")
			instruction, _ := cmd.Flags().GetString("instruction")

			var project *models.Project
			if err := withStack(func(s *stack) error {
				p, err := s.Service.CreateProject(cmdContext(cmd), name, desc, instruction)
				if err != nil {
					return err
				}
				project = p
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(project)
		},
	}

	cmd.Flags().String("name", "", "Project name (required)")
	cmd.Flags().String("desc", "", "Project description")
	cmd.Flags().String("instruction", "", "Standing instruction for every agent in the project")
	return cmd
}

func newProjectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a project with its shared context",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := idArg(cmd, args)
			if err != nil {
				if len(args) == 0 {
					projectID = resolveProjectID(cmd)
				}
				if projectID == "" {
					return cmdErr(err)
				}
			}

			var pc *models.ProjectWithContext
			if err := withDB(func(db *DB) error {
				p, err := store.GetProjectWithContext(cmdContext(cmd), db, projectID)
				if err != nil {
					return err
				}
				pc = p
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(pc)
		},
	}

	cmd.Flags().String("id", "", "Project ID (default: --project or $PAWJECT_PROJECT_ID)")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var projects []*models.Project
			if err := withDB(func(db *DB) error {
				p, err := store.ListProjects(cmdContext(cmd), db)
				if err != nil {
					return err
				}
				projects = p
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count    int               `json:"count"`
				Projects []*models.Project `json:"projects"`
			}
			return output.PrintSuccess(resp{Count: len(projects), Projects: projects})
		},
	}
}

func newProjectHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the workspace snapshot history of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}
			limit, _ := cmd.Flags().GetInt("limit")

			return withStack(func(s *stack) error {
				ctx := cmdContext(cmd)
				if _, err := store.GetProject(ctx, s.DB, projectID); err != nil {
					return err
				}
				entries, err := s.Workspace.Log(ctx, projectID, limit)
				if err != nil {
					return err
				}
				return output.PrintSuccess(entries)
			})
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum commits to show")
	return cmd
}
