package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dotcommander/pawject/internal/output"
)

type namespaceFlag struct {
	Name     string `json:"name"`
	Usage    string `json:"usage"`
	Default  string `json:"default,omitempty"`
	Required bool   `json:"required,omitempty"`
}

type namespaceEntry struct {
	Name        string          `json:"name"`
	Usage       string          `json:"usage"`
	Description string          `json:"description"`
	Flags       []namespaceFlag `json:"flags"`
}

// namespaceIndex makes a bare namespace (e.g. `pawject user-todo`) print its
// subcommands with their local flags. Project agents read this instead of
// --help when they are unsure how to call a verb.
func namespaceIndex(cmd *cobra.Command) {
	cmd.RunE = func(c *cobra.Command, args []string) error {
		type resp struct {
			Namespace   string           `json:"namespace"`
			Subcommands []namespaceEntry `json:"subcommands"`
		}
		subs := []namespaceEntry{}
		for _, child := range c.Commands() {
			if child.Hidden {
				continue
			}
			subs = append(subs, namespaceEntry{
				Name:        child.Name(),
				Usage:       child.UseLine(),
				Description: child.Short,
				Flags:       localFlags(child),
			})
		}
		return output.PrintSuccess(resp{
			Namespace:   c.CommandPath(),
			Subcommands: subs,
		})
	}
}

func localFlags(cmd *cobra.Command) []namespaceFlag {
	flags := []namespaceFlag{}
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		flags = append(flags, namespaceFlag{
			Name:     f.Name,
			Usage:    f.Usage,
			Default:  f.DefValue,
			Required: isRequiredFlag(f),
		})
	})
	return flags
}
