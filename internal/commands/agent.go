package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
	"github.com/dotcommander/pawject/internal/supervisor"
)

// NewAgentCmd creates the project agent command group
func NewAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage the long-lived project agent",
		Long:  "register and heartbeat are called by the agent itself; start, stop and status are for operators",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newAgentStartCmd())
	cmd.AddCommand(newAgentStopCmd())
	cmd.AddCommand(newAgentStatusCmd())
	cmd.AddCommand(newAgentRegisterCmd())
	cmd.AddCommand(newAgentHeartbeatCmd())

	namespaceIndex(cmd)
	return cmd
}

func newAgentStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the project agent in the foreground until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}

			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withStack(func(s *stack) error {
				reg, err := s.Supervisor.Start(ctx, projectID)
				if err != nil {
					return err
				}
				if err := output.PrintSuccess(reg); err != nil {
					return err
				}

				go s.Supervisor.RunReaper(ctx, s.Runtime.ReapInterval)
				<-ctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				s.Supervisor.Shutdown(shutdownCtx)
				return nil
			})
		},
	}
}

func newAgentStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Signal the registered project agent and mark it stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				ProjectID string `json:"project_id"`
				Signaled  int    `json:"signaled_pid,omitempty"`
			}
			out := resp{ProjectID: projectID}
			if err := withDB(func(db *DB) error {
				ctx := cmdContext(cmd)
				reg, err := store.GetAgentRegistration(ctx, db, projectID)
				if err != nil {
					return err
				}
				if reg.Status == models.AgentStatusRunning && reg.PID > 0 {
					if signalProcess(reg.PID) {
						out.Signaled = reg.PID
					}
				}
				if err := store.SetAgentStatus(ctx, db, projectID, models.AgentStatusStopped, true); err != nil {
					return err
				}
				_, err = store.InsertEvent(ctx, db, models.EventKindAgentStopped, projectID, "", "Project agent stopped from CLI", "")
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(out)
		},
	}
}

// signalProcess sends SIGTERM to pid and reports whether it was delivered.
func signalProcess(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.SIGTERM) == nil
}

func newAgentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted project agent state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}

			var st supervisor.Status
			if err := withStack(func(s *stack) error {
				ctx := cmdContext(cmd)
				if _, err := store.GetProject(ctx, s.DB, projectID); err != nil {
					return err
				}
				st, err = s.Supervisor.Status(ctx, projectID)
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(st)
		},
	}
}

func newAgentRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the calling agent process as the project agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}
			pid, _ := cmd.Flags().GetInt("pid")
			if pid == 0 {
				pid = os.Getppid()
			}
			sessionID, _ := cmd.Flags().GetString("session")

			var reg *models.AgentRegistration
			if err := withDB(func(db *DB) error {
				r, err := supervisor.Register(cmdContext(cmd), db, projectID, pid, sessionID, time.Now().UTC())
				if err != nil {
					return err
				}
				reg = r
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(reg)
		},
	}

	cmd.Flags().Int("pid", 0, "Agent process ID (default: parent process)")
	cmd.Flags().String("session", "", "Claude session ID")
	return cmd
}

func newAgentHeartbeatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Record a project agent heartbeat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}
			status, _ := cmd.Flags().GetString("status")
			pid, _ := cmd.Flags().GetInt("pid")
			sessionID, _ := cmd.Flags().GetString("session")

			u := supervisor.HeartbeatUpdate{
				Status:    models.AgentStatus(status),
				PID:       pid,
				SessionID: sessionID,
			}
			if u.Status != "" && !u.Status.Valid() {
				return cmdErr(errors.New("--status must be one of not_started|running|stopped|crashed"))
			}

			var reg *models.AgentRegistration
			if err := withDB(func(db *DB) error {
				r, err := supervisor.Heartbeat(cmdContext(cmd), db, projectID, u, time.Now().UTC())
				if err != nil {
					return err
				}
				reg = r
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(reg)
		},
	}

	cmd.Flags().String("status", "", "Status: not_started|running|stopped|crashed")
	cmd.Flags().Int("pid", 0, "Optional PID update")
	cmd.Flags().String("session", "", "Optional session ID update")
	return cmd
}
