// Command anvil is the operational companion of the anvil ORM: it reads
// the yaml connection file, checks backend health, and drives the
// migration runner. Applications that ship their own migrations embed
// these commands in their binary and register the migration list before
// Execute.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anvilkit/anvil/core"
	"github.com/anvilkit/anvil/driver/mongo"
	"github.com/anvilkit/anvil/driver/mysql"
	"github.com/anvilkit/anvil/driver/postgres"
	"github.com/anvilkit/anvil/schema"
)

var (
	configPath     string
	connectionName string

	// migrationList is linked in by applications embedding these
	// commands; the bare binary only inspects migration state.
	migrationList []schema.Migration
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "anvil",
		Short:         "anvil ORM operational tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "anvil.yaml", "path to the connections file")
	root.PersistentFlags().StringVarP(&connectionName, "connection", "n", "default", "connection name to operate on")
	root.AddCommand(newPingCommand(), newMigrateCommand())
	return root
}

// openConnection loads the configured connection and dials its backend.
func openConnection(ctx context.Context) (*core.Connection, error) {
	configs, err := core.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	config, ok := configs[connectionName]
	if !ok {
		return nil, fmt.Errorf("anvil: connection %q not found in %s", connectionName, configPath)
	}

	var driver core.Driver
	switch config.Backend {
	case core.BackendPostgres:
		driver, err = postgres.New(ctx, config)
	case core.BackendMySQL:
		driver, err = mysql.New(ctx, config)
	case core.BackendMongo:
		driver, err = mongo.New(ctx, config)
	default:
		return nil, fmt.Errorf("anvil: unknown backend %q for connection %q", config.Backend, connectionName)
	}
	if err != nil {
		return nil, err
	}
	return core.NewConnection(connectionName, driver, config), nil
}

func newPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that every configured connection is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			configs, err := core.LoadConfig(configPath)
			if err != nil {
				return err
			}
			manager := core.NewManager()
			defer manager.CloseAll(ctx)
			for name, config := range configs {
				var driver core.Driver
				var dialErr error
				switch config.Backend {
				case core.BackendPostgres:
					driver, dialErr = postgres.New(ctx, config)
				case core.BackendMySQL:
					driver, dialErr = mysql.New(ctx, config)
				case core.BackendMongo:
					driver, dialErr = mongo.New(ctx, config)
				default:
					dialErr = fmt.Errorf("unknown backend %q", config.Backend)
				}
				if dialErr != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s FAIL  %v\n", name, dialErr)
					continue
				}
				manager.Add(core.NewConnection(name, driver, config))
			}
			for name, err := range manager.HealthCheck(ctx) {
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s FAIL  %v\n", name, err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s OK\n", name)
				}
			}
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run and inspect schema migrations",
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration in one batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := openConnection(ctx)
			if err != nil {
				return err
			}
			defer conn.Close(ctx)
			appliedList, err := schema.NewMigrator(conn).Register(migrationList...).Up(ctx)
			if err != nil {
				return err
			}
			if len(appliedList) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to migrate")
				return nil
			}
			for _, name := range appliedList {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated  %s\n", name)
			}
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := openConnection(ctx)
			if err != nil {
				return err
			}
			defer conn.Close(ctx)
			rolledBackList, err := schema.NewMigrator(conn).Register(migrationList...).Down(ctx, steps)
			if err != nil {
				return err
			}
			if len(rolledBackList) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				return nil
			}
			for _, name := range rolledBackList {
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back  %s\n", name)
			}
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of batches to roll back")
	migrate.AddCommand(down)

	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied migrations and their batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := openConnection(ctx)
			if err != nil {
				return err
			}
			defer conn.Close(ctx)
			appliedList, err := schema.NewMigrator(conn).Register(migrationList...).Applied(ctx)
			if err != nil {
				return err
			}
			if len(appliedList) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
				return nil
			}
			for _, applied := range appliedList {
				fmt.Fprintf(cmd.OutOrStdout(), "batch %-4d %-40s %s\n",
					applied.Batch, applied.Name, applied.MigratedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	})

	return migrate
}
