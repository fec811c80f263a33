package commands

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/server"
)

// NewServeCmd runs the HTTP API with the scheduler and the agent reaper.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, scheduler and project agent supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.Default()
			s, closeStack, err := openStack(logger)
			if err != nil {
				return cmdErr(err)
			}
			defer closeStack()

			s.Registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			if addr == "" {
				addr = s.Runtime.ListenAddr
			}

			srv := server.New(s.Service, s.Scheduler, s.Supervisor, s.Metrics, s.Registry, logger)
			logger.Info("serving", "addr", addr, "workspace", s.Runtime.WorkspaceRoot)
			if err := srv.Run(ctx, addr, s.Runtime.TickInterval, s.Runtime.ReapInterval); err != nil {
				return cmdErr(err)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default: listen_addr from config, $PORT, or :3000)")
	return cmd
}
