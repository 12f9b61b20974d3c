// ABOUTME: listen and discover commands
// ABOUTME: Decode a stream from a server, or list servers found over mDNS
package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Resonate-Protocol/codecbridge/internal/discovery"
	"github.com/Resonate-Protocol/codecbridge/internal/stream"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/output"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/Resonate-Protocol/codecbridge/pkg/session"
	"github.com/Resonate-Protocol/codecbridge/pkg/sink"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type listenOptions struct {
	Output  string
	Play    bool
	Name    string
	Timeout time.Duration
}

// NewListenCommand decodes a stream from a codecbridge server
func NewListenCommand(a *app) *cobra.Command {
	opts := &listenOptions{}
	cmd := &cobra.Command{
		Use:   "listen [ws-url]",
		Short: "Decode a stream from a server",
		Long: `Listen connects to a stream server and decodes what it broadcasts. Without
a URL the first server found over mDNS is used.`,
		Example: `  codecbridge listen ws://192.168.1.20:8927/stream -o capture.pcm
  codecbridge listen --play`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			return runListen(cmd, a, url, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.Output, "output", "o", "", "Output path (.pkt writes framed packets)")
	flags.BoolVar(&opts.Play, "play", false, "Play decoded audio")
	flags.String("backend", "malgo", "Playback backend (malgo or oto)")
	flags.StringVar(&opts.Name, "name", "", "Listener name sent to the server")
	flags.DurationVar(&opts.Timeout, "timeout", 5*time.Second, "mDNS lookup time when no URL is given")
	addCodecFlags(cmd)
	a.bind(cmd, withCodecBindings(map[string]string{"backend": "playback.backend"}))
	return cmd
}

func firstServer(ctx context.Context, timeout time.Duration) (*discovery.ServerInfo, error) {
	servers, err := discovery.Lookup(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, errors.New("no servers found")
	}
	return servers[0], nil
}

func runListen(cmd *cobra.Command, a *app, url string, opts *listenOptions) error {
	if opts.Output == "" && !opts.Play {
		return errors.New("nothing to do: set --output or --play")
	}
	log := a.entry("listen")
	ctx := cmd.Context()

	if url == "" {
		server, err := firstServer(ctx, opts.Timeout)
		if err != nil {
			return err
		}
		url = server.URL()
		log.WithFields(logrus.Fields{"server": server.Name, "url": url}).Info("Using discovered server")
	}

	l, err := stream.Dial(ctx, url, stream.ListenerConfig{Name: opts.Name})
	if err != nil {
		return err
	}
	defer l.Close()
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	format, err := l.WaitFormat(ctx)
	if err != nil {
		return errors.Wrap(err, "wait for stream format")
	}
	log.WithFields(logrus.Fields{"server": l.Server().Name, "format": format.String()}).Info("Stream started")

	var sinks sink.Tee
	if opts.Output != "" {
		out, closeOut, err := openOutput(opts.Output)
		if err != nil {
			return err
		}
		defer func() { _ = closeOut() }()
		sinks = append(sinks, out)
	}
	if opts.Play {
		dev, err := output.New(a.cfg.Playback.Backend)
		if err != nil {
			return err
		}
		player := sink.NewPlayback(dev)
		defer player.Close()
		sinks = append(sinks, player)
	}
	var out session.Sink = sinks
	if len(sinks) == 1 {
		out = sinks[0]
	}

	p := &pipeline{
		source:  l,
		info:    demux.TrackInfo{Mime: sink.MimeFor(format.Codec), Format: format},
		sink:    out,
		options: a.cfg.Codec.Options(),
		log:     log,
	}
	if err := p.run(ctx); err != nil {
		return err
	}
	log.Info("Stream ended")
	return nil
}

type discoverOptions struct {
	Timeout time.Duration
}

// NewDiscoverCommand lists stream servers on the local network
func NewDiscoverCommand(a *app) *cobra.Command {
	opts := &discoverOptions{}
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find stream servers over mDNS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			servers, err := discovery.Lookup(cmd.Context(), opts.Timeout)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tURL\tCODEC")
			for _, s := range servers {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.URL(), s.Codec)
			}
			return w.Flush()
		},
	}
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", 3*time.Second, "How long to listen for answers")
	return cmd
}
