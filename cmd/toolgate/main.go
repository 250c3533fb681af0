// Package main is the entry point for the toolgate CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolgate/internal/calc"
	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/tool"
	auditsqlite "github.com/flemzord/toolgate/modules/audit/sqlite"
	"github.com/flemzord/toolgate/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, security.ErrMissingCredential) {
			fmt.Fprintln(os.Stderr, "Set the variable in the environment and start again.")
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "toolgate",
		Short:         "Human-in-the-loop gateway between a reasoning engine and its tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")

	run := runCmd()
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.Flags())

	root.AddCommand(run, toolsCmd(), calcCmd(), configCmd(), auditCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "toolgate %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			plain, _ := cmd.Flags().GetBool("plain")
			return app.Run(cmd.Context(), app.RunParams{
				ConfigPath: cfgPath,
				Plain:      plain,
				Stdin:      cmd.InOrStdin(),
				Stdout:     cmd.OutOrStdout(),
			})
		},
	}
	cmd.Flags().Bool("plain", false, "Print answers without Markdown rendering")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Discover and list the tool catalogue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, _, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			cat, err := app.Catalogue(cmd.Context(), cfg, nil)
			printCatalogue(cmd.OutOrStdout(), cat)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			}
			return nil
		},
	}
}

func printCatalogue(w io.Writer, cat []tool.Descriptor) {
	fmt.Fprintf(w, "%d tools\n", len(cat))
	for _, d := range cat {
		desc, _, _ := strings.Cut(strings.TrimSpace(d.Description), "\n")
		fmt.Fprintf(w, "  %-32s %-12s %s\n", d.Name, d.Source, desc)
	}
}

func calcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calc <expression>",
		Short: "Evaluate an arithmetic expression with the bundled calculator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := calc.Evaluate(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if len(args) == 1 {
				cfgPath = args[0]
			}
			cfg, path, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if path == "" {
				path = "built-in defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK (%s)\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "  engine: %s via %s\n", cfg.Engine.Model, cfg.Engine.BaseURL)
			for _, srv := range cfg.ToolServers {
				fmt.Fprintf(cmd.OutOrStdout(), "  tool server: %s (%s)\n", srv.Name, srv.Transport)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, _, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return showConfig(cmd.OutOrStdout(), cfg)
		},
	})
	return cmd
}

func showConfig(w io.Writer, cfg *config.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return err
	}
	security.NewRedactor().RedactMap(m)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return err
	}
	return enc.Close()
}

func auditCmd() *cobra.Command {
	var (
		threadID  string
		eventType string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded audit events, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, _, err := app.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Audit.SQLitePath == "" {
				return errors.New("audit.sqlite_path is not configured")
			}

			sink, err := auditsqlite.Open(cmd.Context(), auditsqlite.Config{Path: cfg.Audit.SQLitePath})
			if err != nil {
				return err
			}
			defer sink.Close()

			events, err := sink.Query(cmd.Context(), auditsqlite.Filter{
				ThreadID: threadID,
				Type:     security.EventType(eventType),
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "Only events of this thread")
	cmd.Flags().StringVar(&eventType, "type", "", "Only events of this type (e.g. approval, tool_result)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of events")
	return cmd
}

func printEvents(w io.Writer, events []security.AuditEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No audit events.")
		return
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-16s", e.Timestamp.Format(time.RFC3339), e.Type)
		if e.ToolName != "" {
			line += " tool=" + e.ToolName
		}
		if e.CallID != "" {
			line += " call=" + e.CallID
		}
		if v, ok := e.Metadata["verdict"]; ok {
			line += " verdict=" + v
		}
		if p, ok := e.Metadata["provenance"]; ok {
			line += " provenance=" + p
		}
		fmt.Fprintln(w, line)
	}
}
