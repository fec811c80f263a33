package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dotcommander/pawject/internal/output"
)

// NewSchemaCmd prints the flag schema of every command so an agent can plan
// CLI calls without parsing help text.
func NewSchemaCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show command flag schemas for agent planning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type resp struct {
				Commands []commandSchema `json:"commands"`
			}
			return output.PrintSuccess(resp{Commands: collectCommandSchemas(root)})
		},
	}
}

type flagSchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type commandSchema struct {
	Command     string                `json:"command"`
	Description string                `json:"description,omitempty"`
	Flags       map[string]flagSchema `json:"flags"`
	Required    []string              `json:"required,omitempty"`
}

// collectCommandSchemas walks root depth-first, skipping the root itself,
// hidden commands and the schema command.
func collectCommandSchemas(root *cobra.Command) []commandSchema {
	var out []commandSchema
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		if c != root && !c.Hidden && c.Name() != "schema" {
			out = append(out, buildCommandSchema(c))
		}
		for _, child := range c.Commands() {
			walk(child)
		}
	}
	walk(root)
	return out
}

func buildCommandSchema(cmd *cobra.Command) commandSchema {
	s := commandSchema{
		Command:     cmd.CommandPath(),
		Description: cmd.Short,
		Flags:       map[string]flagSchema{},
	}

	add := func(f *pflag.Flag) {
		if _, seen := s.Flags[f.Name]; seen || f.Hidden {
			return
		}
		fs := flagSchema{
			Type:        jsonType(f.Value.Type()),
			Description: f.Usage,
			Enum:        enumValues(f.Usage),
		}
		if f.DefValue != "" {
			fs.Default = typedDefault(f.Value.Type(), f.DefValue)
		}
		s.Flags[f.Name] = fs
		if isRequiredFlag(f) {
			s.Required = append(s.Required, f.Name)
		}
	}
	cmd.InheritedFlags().VisitAll(add)
	cmd.NonInheritedFlags().VisitAll(add)
	return s
}

func jsonType(flagType string) string {
	switch flagType {
	case "int", "int32", "int64", "uint", "uint32", "uint64":
		return "integer"
	case "bool":
		return "boolean"
	}
	return "string"
}

func typedDefault(flagType, raw string) any {
	switch jsonType(flagType) {
	case "boolean":
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	case "integer":
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return raw
}

func isRequiredFlag(f *pflag.Flag) bool {
	if vals, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(vals) > 0 && vals[0] == "true" {
		return true
	}
	return strings.Contains(strings.ToLower(f.Usage), "(required)")
}

// enumValues reads "Label: a|b|c" usage strings.
func enumValues(usage string) []string {
	_, after, ok := strings.Cut(usage, ":")
	if !ok {
		return nil
	}
	cand, _, _ := strings.Cut(strings.TrimSpace(after), " ")
	if !strings.Contains(cand, "|") {
		return nil
	}
	var values []string
	for _, p := range strings.Split(cand, "|") {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	if len(values) < 2 {
		return nil
	}
	return values
}
