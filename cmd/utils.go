package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type choice struct {
	name string
	help string
}

// enumFlag is a pflag.Value that only accepts one of its choices. The first
// choice is the default.
type enumFlag struct {
	choices []choice
	value   string
}

func newEnumFlag(choices ...choice) *enumFlag {
	if len(choices) == 0 {
		panic("newEnumFlag: no choices")
	}
	return &enumFlag{choices: choices, value: choices[0].name}
}

func (e *enumFlag) String() string { return e.value }
func (e *enumFlag) Type() string   { return "enum" }

func (e *enumFlag) names() []string {
	names := make([]string, len(e.choices))
	for i, c := range e.choices {
		names[i] = c.name
	}
	return names
}

// usage lists the accepted values in declaration order, e.g. `[config, clang]`.
func (e *enumFlag) usage() string { return "[" + strings.Join(e.names(), ", ") + "]" }

func (e *enumFlag) Set(v string) error {
	for _, c := range e.choices {
		if c.name == v {
			e.value = v
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(e.names(), ", "))
}

// complete offers the choices with their help as shell completions.
func (e *enumFlag) complete(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	items := make([]string, 0, len(e.choices))
	for _, c := range e.choices {
		if c.help == "" {
			items = append(items, c.name)
			continue
		}
		items = append(items, c.name+"\t"+c.help)
	}
	return items, cobra.ShellCompDirectiveNoFileComp
}
