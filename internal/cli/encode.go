// ABOUTME: encode and transcode commands
// ABOUTME: Encode feeds PCM straight to an encoder; transcode decodes first
package cli

import (
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type encodeOptions struct {
	Source    sourceOptions
	Output    string
	Codec     string
	Bitrate   int
	CodedBits int
	Rate      int
}

func addEncodeFlags(cmd *cobra.Command, opts *encodeOptions) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.Output, "output", "o", "", "Output path (.pkt writes framed packets)")
	flags.StringVar(&opts.Codec, "codec", "opus", "Encoder (opus or raw)")
	flags.IntVar(&opts.Bitrate, "bitrate", 0, "Target bitrate in bits per second")
	flags.IntVar(&opts.CodedBits, "coded-bits", 0, "Bits per coded sample for the raw encoder")
	_ = cmd.MarkFlagRequired("output")
	addSourceFlags(cmd, &opts.Source)
	addCodecFlags(cmd)
}

// NewEncodeCommand encodes PCM input
func NewEncodeCommand(a *app) *cobra.Command {
	opts := &encodeOptions{}
	cmd := &cobra.Command{
		Use:   "encode <input>",
		Short: "Encode PCM, MP3 or FLAC input",
		Example: `  codecbridge encode --pcm-rate 48000 voice.pcm -o voice.pkt
  codecbridge encode --codec raw --coded-bits 24 song.flac -o song.pcm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, a, args[0], opts, true)
		},
	}
	addEncodeFlags(cmd, opts)
	a.bind(cmd, withCodecBindings(map[string]string{}))
	return cmd
}

// NewTranscodeCommand decodes, resamples when needed and re-encodes
func NewTranscodeCommand(a *app) *cobra.Command {
	opts := &encodeOptions{}
	cmd := &cobra.Command{
		Use:   "transcode <input>",
		Short: "Decode an input and re-encode it",
		Long: `Transcode runs a decoder session and an encoder session joined by a pipe.
Decoded PCM is resampled to --rate, or to 48 kHz when Opus cannot take the
decoded rate.`,
		Example: `  codecbridge transcode song.flac -o song.pkt
  codecbridge transcode --codec raw --rate 16000 song.pkt -o song.pcm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, a, args[0], opts, false)
		},
	}
	addEncodeFlags(cmd, opts)
	cmd.Flags().IntVar(&opts.Rate, "rate", 0, "Resample decoded audio to this rate")
	a.bind(cmd, withCodecBindings(map[string]string{}))
	return cmd
}

func runEncode(cmd *cobra.Command, a *app, path string, opts *encodeOptions, direct bool) error {
	name := "transcode"
	if direct {
		name = "encode"
	}
	log := a.entry(name)

	mime, err := encoderMime(opts.Codec)
	if err != nil {
		return err
	}
	src, err := demux.Open(path, opts.Source.demux()...)
	if err != nil {
		return err
	}
	defer src.Close()

	info := src.Info()
	if direct && info.Mime != codec.MimeRaw {
		return errors.Wrapf(codec.ErrUnsupported, "encode needs PCM input, %s has %s; use transcode", path, info.Mime)
	}

	out, closeOut, err := openOutput(opts.Output)
	if err != nil {
		return err
	}
	p := &pipeline{
		source:    src,
		info:      info,
		sink:      out,
		encoder:   mime,
		direct:    direct,
		rate:      opts.Rate,
		bitDepth:  16,
		bitrate:   opts.Bitrate,
		codedBits: opts.CodedBits,
		options:   a.cfg.Codec.Options(),
		log:       log,
	}
	runErr := p.run(cmd.Context())
	if err := closeOut(); err != nil && runErr == nil {
		runErr = errors.Wrap(err, "close output")
	}
	if runErr != nil {
		return runErr
	}
	log.WithFields(logrus.Fields{"input": path, "output": opts.Output, "codec": opts.Codec}).Info(name + " complete")
	return nil
}
