// Package bar draws the stage progress of a configuration run.
package bar

import (
	"github.com/k0kubun/go-ansi"
	"github.com/roffe/canbtr"
	"github.com/schollz/progressbar/v3"
)

// Stages is the number of transitions from Idle to Open.
const Stages = 4

func New(text string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		Stages,
		progressbar.OptionSetWriter(ansi.NewAnsiStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(text),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// Tracker returns a state change callback advancing pb one step per stage
// and describing the stage being entered.
func Tracker(pb *progressbar.ProgressBar) func(from, to canbtr.State) {
	return func(from, to canbtr.State) {
		switch to {
		case canbtr.Closing, canbtr.Configuring, canbtr.Opening:
			pb.Describe(to.String())
			pb.Add(1)
		case canbtr.Open:
			pb.Describe("[green]Open[reset]")
			pb.Add(1)
			pb.Finish()
		case canbtr.Error:
			pb.Describe("[red]Error[reset] while " + from.String())
		}
	}
}
