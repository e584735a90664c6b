// Command aaviondb is the CLI entry point: it loads process
// configuration, composes the system via internal/bootstrap, registers
// the built-in command set, and forwards each subcommand as one
// dispatch.Dispatch call, printing the response envelope as JSON.
//
// Grounded on the teacher's cmd/bd cobra command tree (one root command
// delegating to a shared core); reduced here to a thin pass-through
// because the statement parser/dispatcher (C6) already owns verb
// parsing, flag parsing, and payload extraction.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/dominikletica/aaviondb/internal/bootstrap"
	"github.com/dominikletica/aaviondb/internal/commands"
	"github.com/dominikletica/aaviondb/internal/config"
	"github.com/dominikletica/aaviondb/internal/logging"
)

var (
	flagRoot     string
	flagLogLevel string
	flagLogPath  string
	flagJSON     bool

	sys *bootstrap.System
)

func main() {
	err := rootCmd().Execute()
	if sys != nil {
		_ = sys.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aaviondb",
		Short:         "Versioned, content-addressed knowledge store",
		Long:          "aaviondb stores projects/entities/versions in content-addressed brain files and drives them through a single command dispatcher.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagRoot, "root", "", "brain storage root directory (default ~/.aaviondb)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug|info|warn|error")
	root.PersistentFlags().StringVar(&flagLogPath, "log-path", "", "rotating log file path")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "print raw JSON (no pretty formatting)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return setup()
	}

	root.AddCommand(execCmd())
	root.AddCommand(diagnoseCmd())
	return root
}

func setup() error {
	if sys != nil {
		return nil
	}
	overrides := map[string]any{}
	if flagRoot != "" {
		overrides["root"] = flagRoot
	}
	if flagLogLevel != "" {
		overrides["log-level"] = flagLogLevel
	}
	if flagLogPath != "" {
		overrides["log-path"] = flagLogPath
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return err
	}
	s, err := bootstrap.Setup(bootstrap.Options{
		Root:     cfg.Root,
		LogLevel: logging.ParseLevel(cfg.LogLevel),
		LogPath:  cfg.LogPath,
	})
	if err != nil {
		return err
	}
	if err := commands.Register(s); err != nil {
		return err
	}
	sys = s
	return nil
}

// execCmd exposes the full statement grammar directly: every argument
// is rejoined into one statement and handed to the dispatcher, which
// owns verb/flag/payload parsing (C6).
func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <statement...>",
		Short: "Run one dispatcher statement",
		Long: `Run a single statement through the command dispatcher.

Examples:
  aaviondb exec entity save demo hero '{"name":"Aria"}'
  aaviondb exec project list --brain=demo
  aaviondb exec export run --preset=context-unified --projects=demo`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement := joinQuoted(args)
			action, params := sys.Dispatcher.Parse(statement)
			resp := sys.Dispatcher.Dispatch(action, params)
			return printResponse(resp)
		},
	}
}

func diagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Run a quick health check over every composed collaborator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(sys.Diagnose())
		},
	}
}

func printResponse(resp any) error {
	return printJSON(resp)
}

func printJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if flagJSON {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(string(pretty.Pretty(raw)))
	return nil
}

func joinQuoted(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
