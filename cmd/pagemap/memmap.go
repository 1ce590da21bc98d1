package main

import (
	"pagemap/kernel/hal"

	"github.com/spf13/cobra"
)

var memmapCmd = &cobra.Command{
	Use:   "memmap",
	Short: "Print the boot memory map.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := bootMachine(); err != nil {
			return err
		}

		hal.PrintMemoryMap(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(memmapCmd)
}
