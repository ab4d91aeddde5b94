package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/carelink/medirank/server/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show feedback-loop usage statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		st, err := openStore(cmd, p)
		if err != nil {
			return err
		}
		defer st.Close()

		collector := stats.NewCollector(st)
		collector.Collect(cmd.Context())

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(collector.GetStats())
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
