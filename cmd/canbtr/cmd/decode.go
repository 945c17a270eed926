package cmd

import (
	"fmt"
	"strings"

	"github.com/roffe/canbtr/pkg/slcan"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:     "decode <BTR0BTR1>",
	Short:   "show the bit timing a register pair produces",
	Example: "  canbtr decode 0218 --clock 24000000\n  canbtr decode s011C",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		regs, err := parseRegisterArg(args[0])
		if err != nil {
			return err
		}
		sol, err := regs.Timing(profile.Clock)
		if err != nil {
			return err
		}
		_, _, _, _, tripleSample := regs.Fields()
		fmt.Printf("%s @ %d Hz\n", regs, profile.Clock)
		fmt.Printf("  brp=%d tseg1=%d tseg2=%d sjw=%d triple-sample=%v\n",
			sol.Prescaler, sol.TSEG1, sol.TSEG2, sol.SJW, tripleSample)
		fmt.Printf("  bitrate %s, %d quanta, sample point %.1f%%\n",
			green("%d bit/s", sol.Bitrate), sol.Quanta(), sol.SamplePoint()*100)
		return nil
	},
}

// parseRegisterArg accepts a bare pair or a set bit timing command with or
// without its CR.
func parseRegisterArg(s string) (slcan.RegisterPair, error) {
	if strings.HasPrefix(s, "s") {
		c, err := slcan.ParseCommand([]byte(strings.TrimSuffix(s, "\r") + "\r"))
		if err != nil {
			return slcan.RegisterPair{}, err
		}
		return c.Registers, nil
	}
	return slcan.ParseRegisters(s)
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
