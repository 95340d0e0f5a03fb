package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("schema up to date")
		return nil
	},
}

var seedUserCmd = &cobra.Command{
	Use:   "seed-user",
	Short: "Provision the default owner account",
	Long:  "Creates the configured seed account if it does not exist. Safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(cmd.Context()); err != nil {
			return err
		}
		u, err := env.Auth.EnsureDefaultOwner(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("owner %s (%s)\n", u.Email, u.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedUserCmd)
}
