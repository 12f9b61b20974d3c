// ABOUTME: probe command
// ABOUTME: Describes an input's track and, optionally, counts its packets
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type probeOptions struct {
	Source       sourceOptions
	Count        bool
	OutputFormat string
}

type probeResult struct {
	Path     string `json:"path"`
	Mime     string `json:"mime"`
	Format   string `json:"format"`
	Duration string `json:"duration,omitempty"`
	Decoder  string `json:"decoder,omitempty"`
	Packets  int    `json:"packets,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
}

// NewProbeCommand describes an input file
func NewProbeCommand(a *app) *cobra.Command {
	opts := &probeOptions{}
	cmd := &cobra.Command{
		Use:   "probe <input>",
		Short: "Show the track of an input file",
		Example: `  codecbridge probe song.aac
  codecbridge probe --count --output json song.flac`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.Count, "count", false, "Read every packet and report totals")
	flags.StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (json or text)")
	addSourceFlags(cmd, &opts.Source)
	return cmd
}

func addSourceFlags(cmd *cobra.Command, o *sourceOptions) {
	flags := cmd.Flags()
	flags.IntVar(&o.PCMRate, "pcm-rate", 0, "Sample rate of headerless PCM input")
	flags.IntVar(&o.PCMChannels, "pcm-channels", 2, "Channel count of headerless PCM input")
	flags.IntVar(&o.PCMBits, "pcm-bits", 16, "Bit depth of headerless PCM input")
	flags.IntVar(&o.Chunk, "chunk", 0, "Packet size in bytes for PCM-producing inputs")
}

func probe(path string, opts *probeOptions) (*probeResult, error) {
	src, err := demux.Open(path, opts.Source.demux()...)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	info := src.Info()
	res := &probeResult{Path: path, Mime: info.Mime, Format: info.Format.String()}
	if info.Duration > 0 {
		res.Duration = (time.Duration(info.Duration) * time.Microsecond).String()
	}
	for _, ci := range codec.List() {
		if ci.Mime == info.Mime && ci.Kind == codec.KindDecoder {
			res.Decoder = ci.Name
			break
		}
	}

	if opts.Count {
		for {
			pkt, err := src.ReadPacket()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, errors.Wrapf(err, "packet %d", res.Packets)
			}
			res.Packets++
			res.Bytes += int64(len(pkt.Data))
		}
	}
	return res, nil
}

func runProbe(cmd *cobra.Command, path string, opts *probeOptions) error {
	res, err := probe(path, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.OutputFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "File:     %s\n", res.Path)
	fmt.Fprintf(out, "Mime:     %s\n", res.Mime)
	fmt.Fprintf(out, "Format:   %s\n", res.Format)
	if res.Duration != "" {
		fmt.Fprintf(out, "Duration: %s\n", res.Duration)
	}
	decoder := res.Decoder
	if decoder == "" {
		decoder = "(none registered)"
	}
	fmt.Fprintf(out, "Decoder:  %s\n", decoder)
	if opts.Count {
		fmt.Fprintf(out, "Packets:  %d (%d bytes)\n", res.Packets, res.Bytes)
	}
	return nil
}
