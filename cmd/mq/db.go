package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/marquee/internal/app"
	"github.com/zulandar/marquee/internal/config"
	"github.com/zulandar/marquee/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize request and user storage",
		Long:  "Creates the MySQL database if needed, migrates all tables and seeds users from the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Marquee config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s (storage: %s)\n", configPath, cfg.Storage.Driver)

	if cfg.Storage.Driver == "mysql" {
		m := cfg.Storage.MySQL
		adminDB, err := db.ConnectAdmin(m.User, m.Host, m.Port)
		if err != nil {
			return fmt.Errorf("connect to MySQL at %s:%d: %w", m.Host, m.Port, err)
		}
		fmt.Fprintf(out, "Connected to MySQL at %s:%d\n", m.Host, m.Port)
		err = db.CreateDatabase(adminDB, m.Database)
		if sqlDB, derr := adminDB.DB(); derr == nil {
			sqlDB.Close()
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", m.Database)
	}

	lock, err := app.Lock(cfg.DataDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if cfg.Storage.Driver == "json" {
		stores, err := app.OpenStores(cfg)
		if err != nil {
			return err
		}
		defer stores.Close()
		fmt.Fprintf(out, "Seeded %d users into %s\n", len(stores.Users.All()), cfg.DataDir)
		fmt.Fprintln(out, "Storage initialized.")
		return nil
	}

	gormDB, err := app.OpenDB(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	seed := cfg.SeedUsers()
	if err := db.SeedUsers(gormDB, seed); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d users\n", len(seed))
	fmt.Fprintln(out, "Storage initialized.")
	return nil
}
