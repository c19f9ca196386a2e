// Package main is the trial dashboard command-line tool: one-shot refreshes,
// workbook and ledger exports, migrations and MCP client setup.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trial-progress-dashboard/internal/app"
	"github.com/trial-progress-dashboard/internal/config"
	"github.com/trial-progress-dashboard/internal/database"
	"github.com/trial-progress-dashboard/internal/export"
	"github.com/trial-progress-dashboard/internal/ledger"
	"github.com/trial-progress-dashboard/internal/setup"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "trialdash",
		Short:        "Trial progress dashboard",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to the configuration file")

	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(setupCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Manager, *logrus.Logger, error) {
	m, err := config.NewManagerFromFile(configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	logCfg := m.GetConfig().Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, err := config.NewLogger(logCfg)
	if err != nil {
		return nil, nil, err
	}
	return m, logger, nil
}

func withApp(ctx context.Context, fn func(a *app.App) error) error {
	m, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, m, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func refreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch a snapshot, recompute the dashboard and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			section, _ := cmd.Flags().GetString("section")
			ctx, cancel := context.WithTimeout(cmd.Context(), app.RefreshTimeout)
			defer cancel()

			return withApp(ctx, func(a *app.App) error {
				snap, err := a.Dashboard.Refresh(ctx)
				if err != nil {
					return err
				}
				var out interface{} = snap
				if section != "" {
					if out, err = a.Dashboard.Section(section); err != nil {
						return err
					}
				}
				return writeJSON(cmd, out)
			})
		},
	}
	cmd.Flags().String("section", "", "print only this dashboard section")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Refresh and write the dashboard workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx, cancel := context.WithTimeout(cmd.Context(), app.RefreshTimeout)
			defer cancel()

			return withApp(ctx, func(a *app.App) error {
				if dir == "" {
					dir = a.Config.GetConfig().Export.Dir
				}
				snap, err := a.Dashboard.Refresh(ctx)
				if err != nil {
					return err
				}
				path, err := export.WriteFile(snap.Dashboard, dir)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().String("dir", "", "output directory (default: export.dir)")

	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Write every recorded run as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return withApp(cmd.Context(), func(a *app.App) error {
				if a.Ledger == nil {
					return fmt.Errorf("run ledger is disabled")
				}
				w := cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", output, err)
					}
					defer f.Close()
					w = f
				}
				return ledger.ExportJSON(cmd.Context(), a.Ledger, w)
			})
		},
	}
	ledgerCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.AddCommand(ledgerCmd)
	return cmd
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List recent refresh runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withApp(cmd.Context(), func(a *app.App) error {
				if len(args) == 1 {
					run, err := a.Dashboard.Run(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return writeJSON(cmd, run)
				}

				runs, err := a.Dashboard.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTARTED\tAS OF\tSOURCE\tSTATUS\tPATIENTS\tDURATION\tERROR")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
						r.ID, r.StartedAt.Format(time.RFC3339), r.AsOf.Format("2006-01-02"),
						r.Source, r.Status, r.Patients, r.Duration().Round(time.Millisecond), r.Error)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Int("limit", ledger.DefaultListLimit, "maximum number of runs")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL run ledger schema",
	}

	runner := func(cmd *cobra.Command) (*database.MigrationRunner, error) {
		m, logger, err := loadConfig()
		if err != nil {
			return nil, err
		}
		lc := m.GetLedgerConfig()
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = lc.MigrationsPath
		}
		if dir == "" {
			dir = "./migrations"
		}
		return database.NewMigrationRunner(lc.DatabaseURL, dir, logger)
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := runner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()
			return r.Up(cmd.Context())
		},
	}
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := runner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()
			return r.Down(cmd.Context())
		},
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := runner(cmd)
			if err != nil {
				return err
			}
			defer r.Close()
			v, dirty, err := r.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return nil
		},
	}
	for _, c := range []*cobra.Command{upCmd, downCmd, versionCmd} {
		c.Flags().String("dir", "", "path to the migrations directory")
		cmd.AddCommand(c)
	}
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := loadConfig()
			if err != nil {
				return err
			}
			asOf, err := m.AsOf(time.Now())
			if err != nil {
				return err
			}
			cfg := m.GetConfig()
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK: source=%s cache=%s ledger=%s as_of=%s\n",
				cfg.Source.Kind, cfg.Cache.Kind, cfg.Ledger.Driver, asOf.Format("2006-01-02"))
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := setup.WriteStarterConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "overwrite an existing file")
	return cmd
}

func setupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the dashboard MCP server with a desktop MCP client",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientConfig, _ := cmd.Flags().GetString("client-config")
			binary, _ := cmd.Flags().GetString("binary")
			dataDir, _ := cmd.Flags().GetString("data-dir")

			path, err := setup.Register(setup.Options{
				ClientConfigPath: clientConfig,
				BinaryPath:       binary,
				ConfigFile:       configFile,
				DataDir:          dataDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s in %s\n", setup.ServerName, path)
			return nil
		},
	}
	cmd.Flags().String("client-config", "", "MCP client configuration file (default: desktop client)")
	cmd.Flags().String("binary", "", "path to the dashboard-mcp binary")
	cmd.Flags().String("data-dir", "", "data directory passed to the server")
	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
