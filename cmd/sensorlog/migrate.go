package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		version, dirty, err := st.Version()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d (dirty: %t)\n", cfg.Database, version, dirty)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
