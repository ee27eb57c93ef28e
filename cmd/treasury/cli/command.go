// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is a CLI command or a group of subcommands.
type Command struct {
	// Name is the command name as typed (e.g. "store").
	Name string

	// Summary is the one-line description shown in the parent's listing.
	Summary string

	// Description is shown at the top of the command's own help.
	Description string

	// Usage overrides the synthesized usage line.
	Usage string

	Examples []Example

	// Flags returns the command's flag set. Called lazily; nil means
	// the command takes no flags.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run executes the command with the positional args left after flag
	// parsing. When both Run and Subcommands are set, Run handles args
	// that match no subcommand.
	Run func(args []string) error

	// Output receives help text. Nil means stderr.
	Output io.Writer

	parent *Command
}

// Example is a usage example shown in help output.
type Example struct {
	Description string
	Command     string
}

// Execute parses args and dispatches to a subcommand or Run.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.output())
		return nil
	}

	if sub, rest, err := c.route(args); sub != nil || err != nil {
		if err != nil {
			return err
		}
		return sub.Execute(rest)
	}

	if len(c.Subcommands) > 0 && c.Run == nil {
		c.PrintHelp(c.output())
		if len(args) == 0 {
			return fmt.Errorf("%s: subcommand required", c.fullName())
		}
		return fmt.Errorf("%s: subcommand required before flag %s", c.fullName(), args[0])
	}

	positional, err := c.parseFlags(args)
	if err != nil {
		return err
	}
	if c.Run == nil {
		c.PrintHelp(c.output())
		return fmt.Errorf("%s does nothing on its own", c.fullName())
	}
	return c.Run(positional)
}

// route finds the subcommand named by args[0]. It returns nil and no
// error when args should be handled by c itself.
func (c *Command) route(args []string) (*Command, []string, error) {
	if len(c.Subcommands) == 0 || len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return nil, nil, nil
	}
	for _, sub := range c.Subcommands {
		if sub.Name == args[0] {
			sub.parent = c
			return sub, args[1:], nil
		}
	}
	if c.Run != nil {
		return nil, nil, nil
	}
	problem := fmt.Sprintf("unknown command %q", args[0])
	if suggestion := suggestCommand(args[0], c.Subcommands); suggestion != "" {
		problem += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return nil, nil, c.usageError(problem)
}

// parseFlags applies c's flags to args and returns the positional
// arguments that remain.
func (c *Command) parseFlags(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		problem := err.Error()
		if strings.Contains(problem, "unknown") {
			if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
				problem += fmt.Sprintf(" (did you mean %s?)", suggestion)
			}
		}
		return nil, c.usageError(problem)
	}
	return flagSet.Args(), nil
}

func (c *Command) usageError(problem string) error {
	return fmt.Errorf("%s\n\nSee '%s --help'.", problem, c.fullName())
}

// PrintHelp writes help for the command to w.
func (c *Command) PrintHelp(w io.Writer) {
	var b strings.Builder
	name := c.fullName()

	if heading := cmp.Or(c.Description, c.Summary); heading != "" {
		b.WriteString(heading + "\n\n")
	}

	usage := c.Usage
	if usage == "" {
		usage = name + " [flags]"
		if len(c.Subcommands) > 0 {
			usage = name + " <command> [flags]"
		}
	}
	b.WriteString("Usage:\n  " + usage + "\n")

	if len(c.Subcommands) > 0 {
		b.WriteString("\nCommands:\n")
		table := tabwriter.NewWriter(&b, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		table.Flush()
	}

	if c.Flags != nil {
		if usages := c.Flags().FlagUsages(); usages != "" {
			b.WriteString("\nFlags:\n" + usages)
		}
	}

	if len(c.Examples) > 0 {
		b.WriteString("\nExamples:\n")
		for i, example := range c.Examples {
			if i > 0 {
				b.WriteString("\n")
			}
			if example.Description != "" {
				b.WriteString("  # " + example.Description + "\n")
			}
			b.WriteString("  " + example.Command + "\n")
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(&b, "\nUse '%s <command> --help' for details on a command.\n", name)
	}
	io.WriteString(w, b.String())
}

func (c *Command) output() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.Output != nil {
			return command.Output
		}
	}
	return os.Stderr
}

// fullName returns the command path, e.g. "treasury store".
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}
