package main

import (
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Execute a page table script.",
	Long: `run executes the operations listed in a script file, one per line. ` +
		`Supported operations: map <addr> [flags], map_to <addr> <frame> [flags], ` +
		`identity <frame> [flags], unmap <addr>, translate <addr> and dump. ` +
		`Flags: rw, user, writethrough, nocache, global, cow, nx. Use "-" to ` +
		`read the script from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		ops, err := parseScript(in)
		if err != nil {
			return err
		}

		m, err := bootMachine()
		if err != nil {
			return err
		}

		for _, op := range ops {
			if err := op.exec(m, cmd.OutOrStdout()); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
