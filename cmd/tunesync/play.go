package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/oto"
)

func newPlayCommand(opts *rootOptions) *cobra.Command {
	var (
		channel int
		from    int
		length  time.Duration
		wav     string
		pcm16   bool
	)
	c := &cobra.Command{
		Use:   "play [tuning.yml|tuning.syx]",
		Short: "Play one octave of a tuning",
		Long: `Play one octave of a tuning as sine tones, or write it to a .wav file.
Notes the tuning leaves unmapped are silent.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			s, err := loadTuning(args)
			if err != nil {
				return err
			}
			q := oto.DefaultSequence()
			q.NoteLength = length
			buf := q.Render(s, channel, oto.Scale(from))
			if wav != "" {
				f, err := os.Create(wav)
				if err != nil {
					return err
				}
				if err := oto.WriteWav(f, buf, q.SampleRate, pcm16); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			}
			audio, err := oto.NewContext(q.SampleRate)
			if err != nil {
				return err
			}
			opts.log.Info("playing", "scale", s.Name(), "from", tunesync.NoteName(from))
			return audio.Play(c.Context(), buf)
		},
	}
	flags := c.Flags()
	flags.IntVarP(&channel, "channel", "c", tunesync.NoChannel, "MIDI channel 0-15 to play, -1 for the global table")
	flags.IntVar(&from, "from", 60, "first note of the octave")
	flags.DurationVar(&length, "length", 400*time.Millisecond, "length of each note")
	flags.StringVarP(&wav, "output", "o", "", "write a .wav file instead of playing")
	flags.BoolVar(&pcm16, "pcm16", false, "write 16-bit integer samples instead of 32-bit float")
	c.PreRunE = func(c *cobra.Command, args []string) error {
		if from < 0 || from > tunesync.NumNotes-13 {
			return fmt.Errorf("--from must be in 0..%d, got %d", tunesync.NumNotes-13, from)
		}
		if length <= 0 {
			return fmt.Errorf("--length must be positive, got %v", length)
		}
		return nil
	}
	return c
}
