// ABOUTME: decode command
// ABOUTME: Decodes an input file to a file, the audio device, or both
package cli

import (
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/output"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/Resonate-Protocol/codecbridge/pkg/session"
	"github.com/Resonate-Protocol/codecbridge/pkg/sink"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type decodeOptions struct {
	Source   sourceOptions
	Output   string
	Play     bool
	Reorder  int
	Resample int
	Bits     int
}

// NewDecodeCommand decodes a file
func NewDecodeCommand(a *app) *cobra.Command {
	opts := &decodeOptions{}
	cmd := &cobra.Command{
		Use:   "decode <input>",
		Short: "Decode an input file",
		Long: `Decode an input file through a decoder session. Output goes to a raw file,
a .pkt packet file, the audio device (--play) or several of these.`,
		Example: `  codecbridge decode song.aac -o song.pcm
  codecbridge decode song.flac --play
  codecbridge decode song.mp3 --resample 48000 --bits 24 -o song.pkt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, a, args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.Output, "output", "o", "", "Output path (.pkt writes framed packets)")
	flags.BoolVar(&opts.Play, "play", false, "Play decoded audio")
	flags.String("backend", "malgo", "Playback backend (malgo or oto)")
	flags.IntVar(&opts.Reorder, "reorder", 0, "Reorder output by timestamp over this many buffers")
	flags.IntVar(&opts.Resample, "resample", 0, "Resample PCM output to this rate")
	flags.IntVar(&opts.Bits, "bits", 16, "Bit depth of resampled output")
	addSourceFlags(cmd, &opts.Source)
	addCodecFlags(cmd)
	a.bind(cmd, withCodecBindings(map[string]string{"backend": "playback.backend"}))
	return cmd
}

// addCodecFlags registers the buffer slot flags
func addCodecFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("input-buffers", 0, "Number of codec input slots")
	flags.Int("output-buffers", 0, "Number of codec output slots")
	flags.Int("input-buffer-size", 0, "Bytes per codec input slot")
	flags.Int("output-buffer-size", 0, "Bytes per codec output slot")
}

func withCodecBindings(keys map[string]string) map[string]string {
	keys["input-buffers"] = "codec.input_buffers"
	keys["output-buffers"] = "codec.output_buffers"
	keys["input-buffer-size"] = "codec.input_buffer_size"
	keys["output-buffer-size"] = "codec.output_buffer_size"
	return keys
}

func runDecode(cmd *cobra.Command, a *app, path string, opts *decodeOptions) error {
	if opts.Output == "" && !opts.Play {
		return errors.New("nothing to do: set --output or --play")
	}
	log := a.entry("decode")

	src, err := demux.Open(path, opts.Source.demux()...)
	if err != nil {
		return err
	}
	defer src.Close()

	var sinks sink.Tee
	if opts.Output != "" {
		out, closeOut, err := openOutput(opts.Output)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeOut(); err != nil {
				log.WithError(err).Warn("Failed to close output")
			}
		}()
		sinks = append(sinks, out)
	}

	var player *sink.Playback
	if opts.Play {
		dev, err := output.New(a.cfg.Playback.Backend)
		if err != nil {
			return err
		}
		player = sink.NewPlayback(dev)
		defer player.Close()
		sinks = append(sinks, player)
	}

	var out session.Sink = sinks
	if len(sinks) == 1 {
		out = sinks[0]
	}

	p := &pipeline{
		source:   src,
		info:     src.Info(),
		sink:     out,
		rate:     opts.Resample,
		bitDepth: opts.Bits,
		reorder:  opts.Reorder,
		options:  a.cfg.Codec.Options(),
		log:      log,
	}
	if err := p.run(cmd.Context()); err != nil {
		return err
	}

	fields := logrus.Fields{"input": path}
	if opts.Output != "" {
		fields["output"] = opts.Output
	}
	if player != nil {
		fields["frames_played"] = player.Played()
	}
	log.WithFields(fields).Info("Decode complete")
	return nil
}
