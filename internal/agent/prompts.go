package agent

import (
	"fmt"
	"strings"

	"github.com/dotcommander/pawject/internal/models"
)

// Trigger messages sent by the scheduler.
const (
	PeriodicTriggerMessage = "This is a scheduled periodic run. Based on the current context, produce this run's report."
	ProgressUpdateMessage  = "Based on the information and progress so far, produce a progress update."
)

func rolePrompt(task *models.Task) string {
	var b strings.Builder
	switch task.Type {
	case models.TaskTypePeriodic:
		fmt.Fprintf(&b, "You are an agent that runs a recurring task: %s.", task.Name)
		writeDescription(&b, task.Description)
		b.WriteString(" On every run, use the latest information and the project context to produce a report or result for this run. Keep the output structured and focused.")
	case models.TaskTypeProactive:
		fmt.Fprintf(&b, "You are an agent that tracks a long-running goal: %s.", task.Name)
		writeDescription(&b, task.Description)
		b.WriteString(" Keep thinking about the goal, fold in new information as it arrives, and report progress and insights at each stage.")
	default:
		fmt.Fprintf(&b, "You are an agent executing a one-time task. The goal is: %s.", task.Name)
		writeDescription(&b, task.Description)
		b.WriteString(" Complete the task efficiently. If you need input from the user, say exactly what you need. When the task is done, summarize the result.")
	}
	return b.String()
}

func writeDescription(b *strings.Builder, description string) {
	if d := strings.TrimSpace(description); d != "" {
		fmt.Fprintf(b, " Description: %s.", strings.TrimSuffix(d, "."))
	}
}

const outputConventions = "## Output conventions\n" +
	"- Write deliverable files under the project `draft/` directory. Files in `context/` are shared input; do not modify them.\n" +
	"- Keep `todo.md` in your task directory current: tick finished plan items and list open questions under `## ASK_USER Items`.\n" +
	"- To publish artifacts (reports, documents, data, code), end your reply with a fenced block:\n\n" +
	"```artifacts\n" +
	`[{"name": "Artifact name", "type": "report|document|data|code|other", "content": "full content", "summary": "one-line summary"}]` + "\n" +
	"```\n"

const askUserGrammar = "## Asking the user\n" +
	"When you cannot continue without the user, put exactly one directive in your reply:\n" +
	"- `[ASK_USER_CONTEXT: question]` when you need information you do not have.\n" +
	"- `[ASK_USER_CONFIRM: question]` when you need approval before an irreversible or outward-facing step.\n" +
	"The task pauses until the user answers. Do not use more than one directive per reply.\n"

// TaskDocument renders the CLAUDE.md written into a task directory.
func TaskDocument(task *models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n\n", task.Name)
	b.WriteString("## Your role\n")
	b.WriteString(rolePrompt(task))
	b.WriteString("\n\nYou are a task agent. The project agent section of ../../CLAUDE.md does not apply to you.\n\n")
	fmt.Fprintf(&b, "- Task ID: `%s`\n- Type: %s\n\n", task.ID, task.Type)
	b.WriteString(outputConventions)
	b.WriteString("\n")
	b.WriteString(askUserGrammar)
	return b.String()
}

func writeProjectBrief(b *strings.Builder, pc *models.ProjectWithContext) {
	if strings.TrimSpace(pc.Instruction) != "" {
		fmt.Fprintf(b, "## Project instruction\n%s\n\n", strings.TrimSpace(pc.Instruction))
	}
	if len(pc.ContextItems) > 0 {
		b.WriteString("## Shared context\n")
		for _, item := range pc.ContextItems {
			fmt.Fprintf(b, "### %s (%s)\n%s\n\n", item.Name, item.Type, strings.TrimSpace(item.Content))
		}
	}
}

// ProjectDocument renders the CLAUDE.md at the project root. Task agents read
// it as parent memory; the project agent reads it as its own role file.
func ProjectDocument(pc *models.ProjectWithContext, apiURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Project: %s\n", pc.Name)
	if d := strings.TrimSpace(pc.Description); d != "" {
		fmt.Fprintf(&b, "> %s\n", d)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Project ID: `%s`\n- API base: `%s`\n\n", pc.ID, apiURL)
	writeProjectBrief(&b, pc)
	b.WriteString(projectAgentSection(pc.ID))
	return b.String()
}

// CombinedDocument renders a single document for a turn run from the project root.
func CombinedDocument(pc *models.ProjectWithContext, task *models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Project: %s\n\n", pc.Name)
	b.WriteString("## Your role\n")
	b.WriteString(rolePrompt(task))
	fmt.Fprintf(&b, "\n\n- Task ID: `%s`\n- Type: %s\n\n", task.ID, task.Type)
	writeProjectBrief(&b, pc)
	b.WriteString(outputConventions)
	b.WriteString("\n")
	b.WriteString(askUserGrammar)
	return b.String()
}

func projectAgentSection(projectID string) string {
	return `## Project agent
This section applies only when you run from the project root as the project agent.

You coordinate every task of this project. You can see all tasks, shared context and outputs.

### Responsibilities
1. Patrol task state. Read ` + "`tasks/<id>/todo.md`" + ` in each task directory and check progress with ` + "`pawject task list`" + ` and ` + "`pawject task show <id>`" + `.
2. Aggregate user todos. Collect the ASK_USER items from every todo.md into ` + "`user_todos.md`" + `, noting priority and whether the answer belongs in project or task context. File each new item with ` + "`pawject user-todo create --task <id> --type ASK_USER_CONTEXT --query \"q\" --priority high`" + ` and check what is already filed with ` + "`pawject user-todo list --open`" + `.
3. Maintain ` + "`tasks.md`" + ` so it matches the real task list. Create tasks with ` + "`pawject task create --name \"x\" --type one_time`" + `.
4. Maintain ` + "`workspace_view.md`" + ` with the sort rules and the reasons behind them.
5. Send a heartbeat with ` + "`pawject agent heartbeat`" + ` after every patrol round.

### Workspace layout
` + "```" + `
workspaces/` + projectID + `/
├── CLAUDE.md           this file
├── tasks.md            task list and status
├── user_todos.md       aggregated user todos
├── workspace_view.md   workspace sort rules
├── context/            shared project context
├── draft/              produced files
└── tasks/
    └── <taskId>/
        ├── CLAUDE.md   task instructions
        └── todo.md     task progress
` + "```" + `

### pawject CLI
| Command | Purpose |
|---|---|
| ` + "`pawject task list`" + ` | list tasks |
| ` + "`pawject task show <id>`" + ` | task detail and recent messages |
| ` + "`pawject task create --name x --type T`" + ` | create a task |
| ` + "`pawject task stop <id>`" + ` | stop a task |
| ` + "`pawject ask-user list`" + ` | open user questions |
| ` + "`pawject user-todo list`" + ` | filed user todos |
| ` + "`pawject user-todo create --task ID --type T --query q`" + ` | file a user todo |
| ` + "`pawject user-todo resolve <id>`" + ` | mark a todo resolved |
| ` + "`pawject artifact list`" + ` | published outputs |
| ` + "`pawject context list`" + ` | shared context items |
| ` + "`pawject agent register`" + ` | register this agent |
| ` + "`pawject agent heartbeat`" + ` | report liveness |
`
}

// ProjectAgentInitPrompt is the first prompt given to a freshly started project agent.
const ProjectAgentInitPrompt = `You are the project agent and have just been started. Run these initialization steps:

1. Run ` + "`pawject agent register`" + ` to register yourself.
2. Run ` + "`pawject task list`" + ` to see every task.
3. Read each task's todo.md to learn its state.
4. If there are ASK_USER items, aggregate them into user_todos.md and file each new one with ` + "`pawject user-todo create --task <id> --type ASK_USER_CONTEXT|ASK_USER_CONFIRM --query \"...\"`" + `.
5. Update tasks.md to reflect the current task state.
6. Run ` + "`pawject agent heartbeat`" + `.

Then keep patrolling. After every patrol round, run ` + "`pawject agent heartbeat`" + ` and wait for the next round.`

// Project management files seeded next to the project agent's CLAUDE.md.
// They are created once and never overwritten.
var ProjectSkeletons = []struct {
	Path    string
	Content string
}{
	{
		Path:    "tasks.md",
		Content: "# Tasks\n\n<!-- Project Agent maintains this file -->\n\n| ID | Name | Type | Status |\n|---|---|---|---|\n",
	},
	{
		Path:    "user_todos.md",
		Content: "# User Todos\n\n<!-- Project Agent aggregates ASK_USER items here -->\n\nNo pending items.\n",
	},
	{
		Path: "workspace_view.md",
		Content: "# Workspace View\n\n<!-- Project Agent maintains sorting rules here -->\n\n## Sort Order\n" +
			"ORDER BY status_priority ASC, updatedAt DESC\n\n## Status Priority\n" +
			"- awaiting_input: 1\n- running: 2\n- pending: 3\n- completed: 4\n",
	},
}
