package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/roffe/canbtr/pkg/btr"
	"github.com/roffe/canbtr/pkg/slcan"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
)

var calcCmd = &cobra.Command{
	Use:   "calc <bitrate>...",
	Short: "calculate BTR0/BTR1 without touching an adapter",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tripleSample, _ := cmd.Flags().GetBool(flagTripleSample)
		c := profile.Constraints()
		var failed bool
		for _, arg := range args {
			bitrate, err := parseBitrate(arg)
			if err != nil {
				return err
			}
			sol, err := btr.Solve(bitrate, c, profile.Tolerance)
			if err != nil {
				var nf *btr.NoFeasibleTimingError
				if !errors.As(err, &nf) {
					return err
				}
				failed = true
				fmt.Println(red("%d bit/s: %v", bitrate, err))
				continue
			}
			regs := slcan.Registers(sol, tripleSample)
			fmt.Printf("%d bit/s @ %d Hz\n", bitrate, c.Clock)
			fmt.Printf("  %s\n", sol)
			fmt.Printf("  %s  command %s\n", green("%s", regs), slcan.NewSetBitTiming(regs))
		}
		if failed {
			return btr.ErrNoFeasibleTiming
		}
		return nil
	},
}

func init() {
	calcCmd.Flags().Bool(flagTripleSample, false, "set the SAM bit")
	rootCmd.AddCommand(calcCmd)
}
