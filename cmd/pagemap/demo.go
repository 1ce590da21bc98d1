package main

import (
	"fmt"

	"pagemap/kernel/mm/vmm"

	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Map, translate and unmap a page.",
	Long: `demo maps the page at 0x1000 to frame 5, translates addresses ` +
		`inside it, unmaps it and translates it again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := bootMachine()
		if err != nil {
			return err
		}

		script := []scriptOp{
			{kind: opMapTo, args: []uint64{0x1000, 5}, flags: vmm.FlagRW},
			{kind: opTranslate, args: []uint64{0x1000}},
			{kind: opTranslate, args: []uint64{0x1000 + 100}},
			{kind: opDump},
			{kind: opUnmap, args: []uint64{0x1000}},
			{kind: opTranslate, args: []uint64{0x1000}},
		}

		for i := range script {
			script[i].line = i + 1
			if err := script[i].exec(m, cmd.OutOrStdout()); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "free frames: %d of %d\n", m.Allocator.FreeCount(), m.Memory.FrameCount())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
