package main

import (
	"fmt"

	"codeberg.org/mutker/sensorlog/internal/link"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ports, err := link.ListPorts()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(ports) == 0 {
			fmt.Fprintln(out, "No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(out, p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
