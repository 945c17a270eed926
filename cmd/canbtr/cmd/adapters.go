package cmd

import (
	"fmt"

	"github.com/roffe/canbtr/adapter"
	"github.com/spf13/cobra"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "list supported adapters",
	Run: func(cmd *cobra.Command, args []string) {
		for _, a := range adapter.ListAdapters() {
			fmt.Println(a.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(adaptersCmd)
}
