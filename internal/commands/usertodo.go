package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/actions"
	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/output"
)

// NewUserTodoCmd creates the user-todo command group
func NewUserTodoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user-todo",
		Short: "Manage questions filed for the user",
		Long:  "The project agent files ASK_USER items from task todo.md files here; the user resolves them",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newUserTodoListCmd())
	cmd.AddCommand(newUserTodoCreateCmd())
	cmd.AddCommand(newUserTodoResolveCmd())

	namespaceIndex(cmd)
	return cmd
}

func newUserTodoListCmd() *cobra.Command {
	var open, resolved bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the project's user todos, open first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}
			if open && resolved {
				return cmdErr(errors.New("--open and --resolved are mutually exclusive"))
			}
			var filter *bool
			if open || resolved {
				filter = &resolved
			}

			var todos []*models.UserTodo
			if err := withStack(func(s *stack) error {
				t, err := s.Service.ListUserTodos(cmdContext(cmd), projectID, filter)
				if err != nil {
					return err
				}
				todos = t
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count int                `json:"count"`
				Todos []*models.UserTodo `json:"todos"`
			}
			return output.PrintSuccess(resp{Count: len(todos), Todos: todos})
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "Only unresolved todos")
	cmd.Flags().BoolVar(&resolved, "resolved", false, "Only resolved todos")
	return cmd
}

func newUserTodoCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "File a question for the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			todoType, _ := cmd.Flags().GetString("type")
			query, _ := cmd.Flags().GetString("query")
			taskID, _ := cmd.Flags().GetString("task")
			suggestion, _ := cmd.Flags().GetString("suggestion")
			priority, _ := cmd.Flags().GetString("priority")

			projectID, err := requireProjectID(cmd)
			if err != nil {
				return cmdErr(err)
			}
			if taskID == "" {
				taskID = os.Getenv("PAWJECT_TASK_ID")
			}
			if taskID == "" {
				return cmdErr(errors.New("--task is required outside a task agent (PAWJECT_TASK_ID unset)"))
			}
			if query == "" {
				return cmdErr(errors.New("--query is required"))
			}

			var todo *models.UserTodo
			if err := withStack(func(s *stack) error {
				t, err := s.Service.CreateUserTodo(cmdContext(cmd), actions.UserTodoInput{
					ProjectID:  projectID,
					TaskID:     taskID,
					Type:       todoType,
					Query:      query,
					Suggestion: suggestion,
					Priority:   priority,
				})
				if err != nil {
					return err
				}
				todo = t
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(todo)
		},
	}

	cmd.Flags().String("type", string(models.UserTodoContext), "Todo type: ASK_USER_CONTEXT|ASK_USER_CONFIRM")
	cmd.Flags().String("query", "", "Question for the user (required)")
	cmd.Flags().String("task", "", "Task ID (default: $PAWJECT_TASK_ID)")
	cmd.Flags().String("suggestion", "", "Where the answer should go (project or task context)")
	cmd.Flags().String("priority", string(models.PriorityMedium), "Priority: high|medium|low")
	return cmd
}

func newUserTodoResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [id]",
		Short: "Resolve a user todo with an optional response",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(cmd, args)
			if err != nil {
				return cmdErr(err)
			}
			response, _ := cmd.Flags().GetString("response")

			var todo *models.UserTodo
			if err := withStack(func(s *stack) error {
				t, err := s.Service.ResolveUserTodo(cmdContext(cmd), id, response)
				if err != nil {
					return err
				}
				todo = t
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(todo)
		},
	}

	cmd.Flags().String("id", "", "Todo ID")
	cmd.Flags().String("response", "", "The user's answer")
	return cmd
}
