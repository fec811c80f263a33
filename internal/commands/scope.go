package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// resolveProjectID resolves the project a command acts on.
// Precedence: --project flag, then PAWJECT_PROJECT_ID (set for agent processes).
func resolveProjectID(cmd *cobra.Command) string {
	if v, err := cmd.Flags().GetString("project"); err == nil && v != "" {
		return v
	}
	return os.Getenv("PAWJECT_PROJECT_ID")
}

func requireProjectID(cmd *cobra.Command) (string, error) {
	id := resolveProjectID(cmd)
	if id == "" {
		return "", errors.New("project is required (set --project or PAWJECT_PROJECT_ID)")
	}
	return id, nil
}

// idArg takes an entity id from the single positional argument or --id.
func idArg(cmd *cobra.Command, args []string) (string, error) {
	flagID, _ := cmd.Flags().GetString("id")
	switch {
	case len(args) > 1:
		return "", errors.New("expected at most one id argument")
	case len(args) == 1 && flagID != "" && flagID != args[0]:
		return "", fmt.Errorf("conflicting ids: argument %q and --id %q", args[0], flagID)
	case len(args) == 1:
		return args[0], nil
	case flagID != "":
		return flagID, nil
	}
	return "", errors.New("id is required (argument or --id)")
}

// cmdContext is cmd.Context, or Background when RunE is called directly.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
