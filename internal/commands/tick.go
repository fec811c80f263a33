package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/scheduler"
)

// NewTickCmd runs one scheduler pass, for cron-driven deployments without serve.
func NewTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run due periodic tasks and proactive progress updates once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var summary scheduler.Summary
			if err := withStack(func(s *stack) error {
				sum, err := s.Scheduler.Tick(cmdContext(cmd))
				if err != nil {
					return err
				}
				summary = sum
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(summary)
		},
	}
}
