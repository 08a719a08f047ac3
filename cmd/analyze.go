package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"djmix/core/decoder"
	"djmix/core/dsp"

	"github.com/spf13/cobra"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Decode a track and print its tempo and structure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dec, closeCache := newDecoder(cfg)
		defer closeCache()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		start := time.Now()
		track, err := dec.Decode(ctx, decoder.Request{
			ID:               decoder.NewRequestID(),
			TrackID:          filepath.Base(args[0]),
			FilePath:         args[0],
			TargetSampleRate: cfg.SampleRate,
			TargetChannels:   dsp.Channels,
		})
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(track)
		}

		fmt.Printf("File:     %s\n", args[0])
		fmt.Printf("Title:    %s\n", track.Title)
		fmt.Printf("Artist:   %s\n", track.Artist)
		fmt.Printf("Duration: %.2fs (%d frames at %d Hz)\n", track.Duration, track.Frames(), track.SampleRate)
		if track.BPM != nil {
			fmt.Printf("BPM:      %.2f\n", *track.BPM)
		} else {
			fmt.Println("BPM:      not detected")
		}
		if st := track.Structure; st != nil {
			fmt.Printf("Beats:    %d\n", len(st.Beats))
			for _, s := range st.Sections {
				fmt.Printf("  %-6s %7.2fs - %7.2fs  (%d beats)\n", s.Name, s.Start, s.End, s.Beats)
			}
			fmt.Printf("Hot cues: %v\n", st.HotCues)
		}
		fmt.Printf("Waveform: %d points\n", len(track.Waveform))
		fmt.Printf("Decoded in %s\n", elapsed.Round(time.Millisecond))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the analysis as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
