package cmd

import (
	"fmt"

	"github.com/roffe/canbtr/pkg/btr"
	"github.com/roffe/canbtr/pkg/slcan"
	"github.com/spf13/cobra"
)

var tableCmd = &cobra.Command{
	Use:   "table [bitrate]...",
	Short: "print register values for the common bitrates",
	Long: `table solves every bitrate concurrently and prints one line per rate.
Without arguments the common Lawicel rates are used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := btr.StandardBitrates
		if len(args) > 0 {
			targets = nil
			for _, arg := range args {
				bitrate, err := parseBitrate(arg)
				if err != nil {
					return err
				}
				targets = append(targets, bitrate)
			}
		}
		c := profile.Constraints()
		results, err := btr.SolveMany(cmd.Context(), targets, c, profile.Tolerance)
		if err != nil {
			return err
		}
		fmt.Printf("clock %d Hz, tolerance %.4f%%\n", c.Clock, profile.Tolerance*100)
		fmt.Printf("%9s  %-8s %4s %5s %5s %3s %9s %8s %6s\n",
			"target", "cmd", "brp", "tseg1", "tseg2", "sjw", "bitrate", "error", "sp")
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("%9d  %s\n", r.Target, red("%v", r.Err))
				continue
			}
			s := r.Solution
			errText := fmt.Sprintf("%7.4f%%", s.RelativeError()*100)
			if s.Bitrate != s.Target {
				errText = yellow("%s", errText)
			}
			fmt.Printf("%9d  %-8s %4d %5d %5d %3d %9d %8s %5.1f%%\n",
				r.Target, slcan.NewSetBitTiming(slcan.Registers(s, false)),
				s.Prescaler, s.TSEG1, s.TSEG2, s.SJW, s.Bitrate, errText, s.SamplePoint()*100)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tableCmd)
}
