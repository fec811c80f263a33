package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/app"
	"github.com/dotcommander/pawject/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := newRootCmd(version)
	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Error("command failed", "error", err.Error())
		}
	}
	return err
}

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "pawject",
		Short:         "Project workspaces run by Claude agents (tasks, schedules, project agents)",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.LoadDotEnv(); err != nil {
				return err
			}
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}

			// Wire --db-path into app-level resolver.
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}

			format, _ := cmd.Flags().GetString("log-format")
			if format == "" {
				format = os.Getenv("PAWJECT_LOG_FORMAT")
			}
			level := slog.LevelInfo
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = slog.LevelDebug
			}
			logger, err := newLogger(os.Stderr, format, level)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override database path")
	root.PersistentFlags().String("log-format", "", "Log format: json|text (default: $PAWJECT_LOG_FORMAT or json)")
	root.PersistentFlags().String("project", "", "Project ID (default: $PAWJECT_PROJECT_ID)")
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.Flags().BoolP("version", "v", false, "version for pawject")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewTickCmd())
	root.AddCommand(NewProjectCmd())
	root.AddCommand(NewContextCmd())
	root.AddCommand(NewTaskCmd())
	root.AddCommand(NewAgentCmd())
	root.AddCommand(NewAskUserCmd())
	root.AddCommand(NewUserTodoCmd())
	root.AddCommand(NewArtifactCmd())
	root.AddCommand(NewEventsCmd())
	root.AddCommand(NewDBCmd())
	root.AddCommand(NewDoctorCmd())
	root.AddCommand(NewSchemaCmd(root))

	return root
}
