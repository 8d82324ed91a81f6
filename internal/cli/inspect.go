package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreman2200/funtimes-scorelight/internal/fetch"
	"github.com/coreman2200/funtimes-scorelight/internal/keyrange"
	"github.com/coreman2200/funtimes-scorelight/internal/score"
	"github.com/coreman2200/funtimes-scorelight/internal/tempo"
	"github.com/coreman2200/funtimes-scorelight/internal/timeline"
)

var inspectJSON bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the timeline as JSON")
	rootCmd.AddCommand(inspectCmd)
}

// loaded is a score read without any playback devices.
type loaded struct {
	name  string
	tempo tempo.Result
	tl    timeline.Timeline
}

func loadScore(cmd *cobra.Command, ref string) (*loaded, error) {
	f := fetch.New(fetch.Options{Timeout: cfg.Fetch.Timeout(), S3Region: cfg.Fetch.S3Region})
	res, err := f.Fetch(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	markup, err := score.Markup(res.Data)
	if err != nil {
		return nil, err
	}
	tl, err := timeline.ExtractMarkup(markup)
	if err != nil {
		return nil, err
	}
	return &loaded{name: res.Name, tempo: tempo.Detect(markup), tl: tl}, nil
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <score>",
	Short: "Print the tempo, timeline and keyboard window of a score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := loadScore(cmd, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if inspectJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(l.tl)
		}
		ro, err := rangeOptions(cfg)
		if err != nil {
			return err
		}
		bpm := cfg.DefaultBPM
		if l.tempo.OK {
			bpm = l.tempo.BPM
		}
		w := keyrange.Fit(l.tl, ro)
		roll := keyrange.FitRoll(l.tl)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "score\t%s\n", l.name)
		fmt.Fprintf(tw, "tempo\t%d BPM (%s)\n", bpm, l.tempo.Source)
		fmt.Fprintf(tw, "notes\t%d\n", len(l.tl.Events))
		fmt.Fprintf(tw, "beats\t%.3f\n", l.tl.TotalBeats)
		fmt.Fprintf(tw, "length\t%s\n", time.Duration(l.tl.Seconds(float64(bpm))*float64(time.Second)).Round(time.Millisecond))
		if lo, hi, ok := l.tl.PitchRange(); ok {
			fmt.Fprintf(tw, "pitches\t%d..%d\n", lo, hi)
		}
		fmt.Fprintf(tw, "keyboard\t%d..%d (%d octaves, first index %d)\n", w.Low, w.High, w.Octaves(), w.LeftmostIndex(keyrange.LayoutBase))
		fmt.Fprintf(tw, "roll\t%d..%d\n", roll.Low, roll.High)
		return tw.Flush()
	},
}

func stdoutOr(path string) (*os.File, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
