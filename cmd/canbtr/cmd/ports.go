package cmd

import (
	"fmt"

	"github.com/roffe/canbtr/adapter"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "list available serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := adapter.ListPorts()
		if err != nil {
			return err
		}
		for _, port := range ports {
			fmt.Println(adapter.DescribePort(port))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
