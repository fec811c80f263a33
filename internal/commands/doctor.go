package commands

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/dotcommander/pawject/internal/app"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
)

type check struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

func failed(err error) check { return check{Error: err.Error()} }

// lookBinary resolves name on PATH (or as a path) to report where it lives.
func lookBinary(name string) check {
	p, err := exec.LookPath(name)
	if err != nil {
		return failed(err)
	}
	return check{OK: true, Detail: p}
}

func dirCheck(path string) check {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return check{Detail: path, Error: "does not exist"}
	case err != nil:
		return failed(err)
	case !info.IsDir():
		return check{Detail: path, Error: "not a directory"}
	}
	return check{OK: true, Detail: path}
}

func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database, claude CLI and git",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.ResolveRuntime()
			if err != nil {
				return cmdErr(err)
			}
			dbPath, dbSource, err := app.ResolveDBPathDetailed()
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				DBPath    string `json:"db_path"`
				DBSource  string `json:"db_source"`
				DB        check  `json:"db"`
				ClaudeCLI check  `json:"claude_cli"`
				Git       check  `json:"git"`
				Workspace check  `json:"workspace_root"`
				Scripts   check  `json:"scripts_dir"`
				APIURL    string `json:"api_url"`
				Hint      string `json:"hint,omitempty"`
			}
			r := resp{
				DBPath:    dbPath,
				DBSource:  dbSource,
				ClaudeCLI: lookBinary(rt.ClaudeCLI),
				Git:       lookBinary("git"),
				Workspace: dirCheck(rt.WorkspaceRoot),
				Scripts:   dirCheck(rt.ScriptsDir),
				APIURL:    rt.APIURL,
			}

			db, err := store.InitDBWithPath(dbPath)
			if err != nil {
				r.DB = failed(err)
				r.Hint = "If this is running in a sandboxed environment, set db_path to a writable location or use --db-path."
			} else {
				defer func() { _ = db.Close() }()
				var one int
				if err := db.QueryRowContext(cmdContext(cmd), "SELECT 1").Scan(&one); err != nil {
					r.DB = failed(err)
				} else {
					r.DB = check{OK: true}
				}
			}
			if !r.Workspace.OK && r.Hint == "" {
				r.Hint = "The workspace root is created with the first project; set WORKSPACE_ROOT or workspace_root in config.yaml to move it."
			}
			return output.PrintSuccess(r)
		},
	}
}
