package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/avast/retry-go"
	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/roffe/canbtr"
	"github.com/roffe/canbtr/adapter"
	"github.com/roffe/canbtr/pkg/bar"
	"github.com/spf13/cobra"
)

const (
	flagRetries      = "retries"
	flagTiming       = "timing"
	flagTripleSample = "triple-sample"
	flagReadWindow   = "read-window"
	flagNoProgress   = "no-progress"
)

var setupCmd = &cobra.Command{
	Use:   "setup <bitrate>",
	Short: "program the bitrate into the adapter and open the channel",
	Long: `setup solves BTR0/BTR1 for bitrate, then sends close, s<BTR0><BTR1> and
open to the adapter. Bitrates may be given as 666666, 500k or 1M.`,
	Example: `  canbtr setup 666666 -p /dev/ttyUSB0
  canbtr setup 615k --timing 3:10:2 -a virtual`,
	Args: cobra.ExactArgs(1),
	RunE: runSetup,
}

func init() {
	f := setupCmd.Flags()
	f.Uint(flagRetries, 0, "re-run the whole handshake this many times on transport errors")
	f.String(flagTiming, "", "skip the solver and use brp:tseg1:tseg2[:sjw]")
	f.Bool(flagTripleSample, false, "sample the bus three times per bit")
	f.Duration(flagReadWindow, 0, "how long to wait for each response")
	f.Bool(flagNoProgress, false, "do not draw the progress bar")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	bitrate, err := parseBitrate(args[0])
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed(flagRetries) {
		profile.Retries, _ = f.GetUint(flagRetries)
	}
	if f.Changed(flagTripleSample) {
		profile.TripleSample, _ = f.GetBool(flagTripleSample)
	}
	readWindow := profile.ReadWindow()
	if f.Changed(flagReadWindow) {
		readWindow, _ = f.GetDuration(flagReadWindow)
	}

	opts := []canbtr.Opts{
		canbtr.OptTolerance(profile.Tolerance),
		canbtr.OptReadWindow(readWindow),
		canbtr.OptTripleSampling(profile.TripleSample),
		canbtr.OptDebug(debug()),
	}
	if timing, _ := f.GetString(flagTiming); timing != "" {
		brp, tseg1, tseg2, sjw, err := parseTiming(timing)
		if err != nil {
			return err
		}
		opts = append(opts, canbtr.OptTiming(brp, tseg1, tseg2, sjw))
	}

	if err := pickPort(); err != nil {
		return err
	}

	noProgress, _ := f.GetBool(flagNoProgress)
	showBar := !noProgress && !debug()

	ctx := cmd.Context()
	var sess *canbtr.Session
	err = retry.Do(
		func() error {
			onMessage := logMessage
			attemptOpts := append([]canbtr.Opts{}, opts...)
			if showBar {
				pb := bar.New(fmt.Sprintf("%d bit/s", bitrate))
				onMessage = quietMessage
				attemptOpts = append(attemptOpts, canbtr.OptOnStateChange(bar.Tracker(pb)))
				defer fmt.Fprintln(os.Stderr)
			}
			attemptOpts = append(attemptOpts, canbtr.OptOnMessage(onMessage))
			s, err := setup(ctx, bitrate, onMessage, attemptOpts)
			sess = s
			return err
		},
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, canbtr.ErrTransport)
		}),
		retry.Attempts(profile.Retries+1),
		retry.Delay(250*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("retry #%d: %v", n+1, err)
		}),
	)
	if err != nil {
		return describeFailure(sess, err)
	}
	defer sess.Transport().Close()

	sol := sess.Solution()
	color.Green("channel open at %d bit/s, %s", sol.Bitrate, sess.Registers())
	fmt.Println(sol)
	return nil
}

func setup(ctx context.Context, bitrate int, onMessage func(string), opts []canbtr.Opts) (*canbtr.Session, error) {
	t, err := adapter.New(profile.Adapter, &adapter.Config{
		Port:         profile.Port,
		PortBaudrate: profile.PortBaudrate,
		OnMessage:    onMessage,
	})
	if err != nil {
		return nil, err
	}
	return canbtr.Run(ctx, t, bitrate, profile.Constraints(), opts...)
}

// pickPort lets the user choose a serial port when the adapter needs one
// and none was configured.
func pickPort() error {
	info, found := adapter.Lookup(profile.Adapter)
	if !found || !info.RequiresSerialPort || profile.Port != "" {
		return nil
	}
	ports, err := adapter.ListPorts()
	if err != nil {
		return err
	}
	var items []string
	for _, p := range ports {
		items = append(items, adapter.DescribePort(p))
	}
	prompt := promptui.Select{
		Label: "Select com-port",
		Items: items,
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return fmt.Errorf("prompt failed %v", err)
	}
	profile.Port = ports[idx].Name
	return nil
}

func describeFailure(sess *canbtr.Session, err error) error {
	msg := err.Error()
	if sess != nil {
		if resp := sess.LastResponse(); resp != nil {
			msg += fmt.Sprintf(" (last response %s)", resp)
		}
	}
	switch {
	case errors.Is(err, canbtr.ErrTransport):
		msg += "\nhint: check the cable and that no other program holds the port"
	case errors.Is(err, canbtr.ErrProtocolRejected):
		msg += "\nhint: the adapter refused to open, try a different bitrate or --timing"
	case errors.Is(err, canbtr.ErrNoFeasibleTiming):
		msg += "\nhint: raise --tolerance or check --clock"
	}
	return errors.New(msg)
}

// logMessage is used when no progress bar is drawn.
func logMessage(msg string) {
	log.Println(msg)
}

// quietMessage keeps the terminal clean while the progress bar is drawn.
func quietMessage(msg string) {
	if fileLog != nil {
		fileLog.Println(msg)
	}
}
