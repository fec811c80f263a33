package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
)

// NewContextCmd creates the context command group
func NewContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage shared project context",
		Long:  "Shared context is visible to every agent of a project. Types: file, url, text_note",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newContextListCmd())
	cmd.AddCommand(newContextAddCmd())
	cmd.AddCommand(newContextRemoveCmd())

	namespaceIndex(cmd)
	return cmd
}

func newContextListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List shared context items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}

			var items []models.ContextItem
			if err := withDB(func(db *DB) error {
				pc, err := store.GetProjectWithContext(cmdContext(cmd), db, projectID)
				if err != nil {
					return err
				}
				items = pc.ContextItems
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count int                  `json:"count"`
				Items []models.ContextItem `json:"items"`
			}
			return output.PrintSuccess(resp{Count: len(items), Items: items})
		},
	}
}

func newContextAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a shared context item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			itemType, _ := cmd.Flags().GetString("type")
			content, _ := cmd.Flags().GetString("content")
			file, _ := cmd.Flags().GetString("file")

			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}
			if file != "" && content != "" {
				return cmdErr(errors.New("--content and --file are mutually exclusive"))
			}
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return cmdErr(fmt.Errorf("failed to read %s: %w", file, err))
				}
				content = string(b)
				if itemType == "" {
					itemType = string(models.ContextItemFile)
				}
				if name == "" {
					name = filepath.Base(file)
				}
			}
			if name == "" {
				return cmdErr(errors.New("--name is required"))
			}
			if itemType == "" {
				itemType = string(models.ContextItemTextNote)
			}

			var item *models.ContextItem
			if err := withStack(func(s *stack) error {
				it, err := s.Service.AddContext(cmdContext(cmd), projectID, name, models.ContextItemType(itemType), content)
				if err != nil {
					return err
				}
				item = it
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(item)
		},
	}

	cmd.Flags().String("name", "", "Item name (default: base name of --file)")
	cmd.Flags().String("type", "", "Item type: file|url|text_note (default: text_note, or file with --file)")
	cmd.Flags().String("content", "", "Item content (URL for url items)")
	cmd.Flags().String("file", "", "Read content from a local file")
	return cmd
}

func newContextRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove a shared context item",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(cmd, args)
			if err != nil {
				return cmdErr(err)
			}

			var item *models.ContextItem
			if err := withStack(func(s *stack) error {
				it, err := s.Service.RemoveContext(cmdContext(cmd), id)
				if err != nil {
					return err
				}
				item = it
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(item)
		},
	}

	cmd.Flags().String("id", "", "Context item ID")
	return cmd
}
