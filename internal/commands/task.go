package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/actions"
	"github.com/dotcommander/pawject/internal/agent"
	"github.com/dotcommander/pawject/internal/claude"
	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
)

// NewTaskCmd creates the task command group
func NewTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Create, inspect and stop tasks. Types: one_time, periodic, proactive. Statuses: pending, running, awaiting_input, completed",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskStopCmd())
	cmd.AddCommand(newTaskSendCmd())

	namespaceIndex(cmd)
	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task and run its first turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			desc, _ := cmd.Flags().GetString("desc")
			taskType, _ := cmd.Flags().GetString("type")
			interval, _ := cmd.Flags().GetInt("interval")

			if name == "" {
				return cmdErr(errors.New("--name is required"))
			}
			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}

			var task *models.Task
			if err := withStack(func(s *stack) error {
				t, err := s.Service.CreateTask(cmdContext(cmd), actions.CreateTaskInput{
					ProjectID:       projectID,
					Name:            name,
					Description:     desc,
					Type:            taskType,
					IntervalMinutes: interval,
				})
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(task)
		},
	}

	cmd.Flags().String("name", "", "Task name (required)")
	cmd.Flags().String("desc", "", "Task description")
	cmd.Flags().String("type", string(models.TaskTypeOneTime), "Task type: one_time|periodic|proactive")
	cmd.Flags().Int("interval", 0, "Run interval in minutes (periodic tasks)")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks (status filter supports pending|running|awaiting_input|completed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")

			var tasks []*models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.ListTasks(cmdContext(cmd), db, resolveProjectID(cmd), models.TaskStatus(status))
				if err != nil {
					return err
				}
				tasks = t
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count int            `json:"count"`
				Tasks []*models.Task `json:"tasks"`
			}
			return output.PrintSuccess(resp{Count: len(tasks), Tasks: tasks})
		},
	}

	cmd.Flags().String("status", "", "Status: pending|running|awaiting_input|completed")
	return cmd
}

func newTaskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a task with its recent messages and todo list",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := idArg(cmd, args)
			if err != nil {
				return cmdErr(err)
			}
			limit, _ := cmd.Flags().GetInt("messages")

			type resp struct {
				Task      *models.Task             `json:"task"`
				Messages  []*models.Message        `json:"messages"`
				Artifacts []*models.OutputArtifact `json:"artifacts,omitempty"`
				Todo      string                   `json:"todo,omitempty"`
			}
			var out resp
			if err := withStack(func(s *stack) error {
				ctx := cmdContext(cmd)
				task, err := store.GetTask(ctx, s.DB, taskID)
				if err != nil {
					return err
				}
				out.Task = task
				if out.Messages, err = store.ListMessages(ctx, s.DB, taskID, limit); err != nil {
					return err
				}
				if out.Artifacts, err = store.ListArtifacts(ctx, s.DB, task.ProjectID, taskID); err != nil {
					return err
				}
				todo, found, err := s.Workspace.ReadTaskTodo(task.ProjectID, taskID)
				if err != nil {
					return err
				}
				if found {
					out.Todo = todo
				}
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(out)
		},
	}

	cmd.Flags().String("id", "", "Task ID")
	cmd.Flags().Int("messages", 10, "Number of recent messages to include (0 = all)")
	return cmd
}

func newTaskStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop [id]",
		Short: "Stop a task (marks it completed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := idArg(cmd, args)
			if err != nil {
				return cmdErr(err)
			}

			var task *models.Task
			if err := withDB(func(db *DB) error {
				t, err := store.StopTask(cmdContext(cmd), db, taskID)
				if err != nil {
					return err
				}
				task = t
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(task)
		},
	}

	cmd.Flags().String("id", "", "Task ID")
	return cmd
}

func newTaskSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [id]",
		Short: "Send a message to a task and run a turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := idArg(cmd, args)
			if err != nil {
				return cmdErr(err)
			}
			message, _ := cmd.Flags().GetString("message")
			if message == "" {
				return cmdErr(errors.New("--message is required"))
			}
			stream, _ := cmd.Flags().GetBool("stream")

			mode := agent.ModeOneShot
			var handler claude.Handler
			if stream {
				mode = agent.ModeStreaming
				handler = func(ev claude.Event) error {
					if ev.Type == claude.EventTextDelta {
						_, _ = fmt.Fprint(os.Stderr, ev.Text)
					}
					return nil
				}
			}

			var rec *actions.TurnRecord
			if err := withStack(func(s *stack) error {
				r, err := s.Service.SendMessage(cmdContext(cmd), taskID, message, mode, handler)
				if err != nil {
					return err
				}
				rec = r
				return nil
			}); err != nil {
				return err
			}
			if stream {
				_, _ = fmt.Fprintln(os.Stderr)
			}
			return output.PrintSuccess(rec)
		},
	}

	cmd.Flags().String("id", "", "Task ID")
	cmd.Flags().StringP("message", "m", "", "Message content (required)")
	cmd.Flags().Bool("stream", false, "Stream agent text to stderr while the turn runs")
	return cmd
}
