// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Command demo runs queries from a definitions document against a SQLite
// database. Where to find the database and the definitions comes from a
// small TOML config file:
//
//	database = "towns.db"
//	definitions = "queries.json"
//
// Run a query with `demo run <name> --args '{"id": 1}'`.
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlhub"
)

// config is the TOML configuration of the demo command.
type config struct {
	// Database is the SQLite database path.
	Database string `toml:"database"`
	// Definitions is the path of the query definitions document.
	Definitions string `toml:"definitions"`
}

const defaultConfigPath = "demo.toml"

func loadConfig(path string) (*config, error) {
	cfg := &config{Database: ":memory:", Definitions: "queries.json"}
	_, err := toml.DecodeFile(path, cfg)
	if os.IsNotExist(err) && path == defaultConfigPath {
		// Defaults apply when the default config file is absent.
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config %q: %w", path, err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "demo",
		Short:         "Run templated queries against a SQLite database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "TOML config file")

	var argsJSON string
	runCmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run a named query and print its rows as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			queries, err := sqlhub.ParseFile(cfg.Definitions)
			if err != nil {
				return fmt.Errorf("failed to load definitions: %w", err)
			}
			sqldb, err := sql.Open("sqlite3", cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			db := sqlhub.NewDB(sqldb, sqlhub.SQLite)

			results, err := db.Run(cmd.Context(), queries, args[0], json.RawMessage(argsJSON))
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(results.Rows, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	runCmd.Flags().StringVarP(&argsJSON, "args", "a", "{}", "query arguments as a JSON object")

	namesCmd := &cobra.Command{
		Use:   "names",
		Short: "List the queries in the definitions document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			queries, err := sqlhub.ParseFile(cfg.Definitions)
			if err != nil {
				return fmt.Errorf("failed to load definitions: %w", err)
			}
			for _, name := range queries.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	errorsCmd := &cobra.Command{
		Use:   "errors",
		Short: "Print the error code table",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, info := range sqlhub.ErrorInfos() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n",
					info.Code, info.Name, info.Category, info.Description)
			}
		},
	}

	rootCmd.AddCommand(runCmd, namesCmd, errorsCmd)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "demo:", err)
		os.Exit(1)
	}
}
