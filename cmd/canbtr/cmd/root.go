package cmd

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/roffe/canbtr/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "canbtr",
	Short: "CAN bit timing tool for Lawicel style USB-CAN adapters",
	Long: `canbtr calculates SJA1000 BTR0/BTR1 register values for any bitrate and
programs them into a Lawicel/SLCAN adapter such as the Waveshare USB-CAN-A.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadProfile,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

const (
	flagConfig    = "config"
	flagAdapter   = "adapter"
	flagPort      = "port"
	flagBaudrate  = "baudrate"
	flagClock     = "clock"
	flagTolerance = "tolerance"
	flagDebug     = "debug"
	flagLogfile   = "logfile"
)

var (
	profile *config.Config
	// fileLog writes to the log file only, nil when no log file is configured.
	fileLog *log.Logger
)

func init() {
	log.SetFlags(log.Lshortfile | log.LstdFlags)

	pf := rootCmd.PersistentFlags()
	pf.String(flagConfig, "", "adapter profile (yaml), defaults to $"+config.EnvConfig)
	pf.StringP(flagAdapter, "a", "", "what adapter to use (SLCAN, Virtual)")
	pf.StringP(flagPort, "p", "", "com-port, empty = pick from list")
	pf.IntP(flagBaudrate, "b", 0, "com-port baudrate")
	pf.Int(flagClock, 0, "CAN controller clock in Hz")
	pf.Float64(flagTolerance, 0, "accepted relative bitrate error, 0.001 = 0.1%")
	pf.BoolP(flagDebug, "d", false, "debug mode, print wire traffic")
	pf.String(flagLogfile, "", "also log to this file (rotated)")
}

func loadProfile(cmd *cobra.Command, _ []string) error {
	pf := cmd.Flags()
	name, _ := pf.GetString(flagConfig)
	cfg, err := config.Load(name)
	if err != nil {
		return err
	}
	if pf.Changed(flagAdapter) {
		cfg.Adapter, _ = pf.GetString(flagAdapter)
	}
	if pf.Changed(flagPort) {
		cfg.Port, _ = pf.GetString(flagPort)
	}
	if pf.Changed(flagBaudrate) {
		cfg.PortBaudrate, _ = pf.GetInt(flagBaudrate)
	}
	if pf.Changed(flagClock) {
		cfg.Clock, _ = pf.GetInt(flagClock)
	}
	if pf.Changed(flagTolerance) {
		cfg.Tolerance, _ = pf.GetFloat64(flagTolerance)
	}
	if pf.Changed(flagLogfile) {
		cfg.Log.File, _ = pf.GetString(flagLogfile)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	profile = cfg

	if cfg.Log.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
		}
		log.SetOutput(io.MultiWriter(os.Stderr, lj))
		fileLog = log.New(lj, "", log.LstdFlags)
	}
	return nil
}

func debug() bool {
	d, _ := rootCmd.PersistentFlags().GetBool(flagDebug)
	return d
}
