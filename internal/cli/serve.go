// ABOUTME: serve command
// ABOUTME: Streams decoded or re-encoded audio to websocket listeners
package cli

import (
	"context"
	"time"

	"github.com/Resonate-Protocol/codecbridge/internal/stream"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveOptions struct {
	Source    sourceOptions
	Codec     string
	Bitrate   int
	Listeners int
	Once      bool
}

// NewServeCommand streams an input to websocket listeners
func NewServeCommand(a *app) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve <input>",
		Short: "Stream an input to websocket listeners",
		Long: `Serve decodes the input and broadcasts every output buffer to connected
listeners. With --codec opus the decoded audio is re-encoded first. The server
is advertised over mDNS unless --mdns=false.`,
		Example: `  codecbridge serve song.flac
  codecbridge serve --codec opus --listeners 1 --once song.mp3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, a, args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.Int("port", 8927, "Port to listen on")
	flags.String("name", "", "Server name advertised over mDNS")
	flags.String("path", "/stream", "WebSocket endpoint")
	flags.Bool("mdns", true, "Advertise over mDNS")
	flags.StringVar(&opts.Codec, "codec", "raw", "Stream codec (raw or opus)")
	flags.IntVar(&opts.Bitrate, "bitrate", 0, "Opus bitrate in bits per second")
	flags.IntVar(&opts.Listeners, "listeners", 0, "Wait for this many listeners before streaming")
	flags.BoolVar(&opts.Once, "once", false, "Exit after the stream ends")
	addSourceFlags(cmd, &opts.Source)
	addCodecFlags(cmd)
	a.bind(cmd, withCodecBindings(map[string]string{
		"port": "serve.port",
		"name": "serve.name",
		"path": "serve.path",
		"mdns": "serve.mdns",
	}))
	return cmd
}

func runServe(cmd *cobra.Command, a *app, path string, opts *serveOptions) error {
	log := a.entry("serve")
	mime, err := encoderMime(opts.Codec)
	if err != nil {
		return err
	}

	src, err := demux.Open(path, opts.Source.demux()...)
	if err != nil {
		return err
	}
	defer src.Close()

	cfg := a.cfg.Serve
	srv := stream.New(stream.Config{
		Port:       cfg.Port,
		Name:       cfg.Name,
		Path:       cfg.Path,
		Codec:      opts.Codec,
		EnableMDNS: cfg.MDNS,
	})

	p := &pipeline{
		source:   src,
		info:     src.Info(),
		sink:     srv,
		bitDepth: 16,
		bitrate:  opts.Bitrate,
		options:  a.cfg.Codec.Options(),
		log:      log,
	}
	if opts.Codec == "opus" {
		p.encoder = mime
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		if err := waitListeners(ctx, srv, opts.Listeners); err != nil {
			return err
		}
		if err := p.run(ctx); err != nil {
			srv.Stop()
			return err
		}
		log.WithFields(logrus.Fields{
			"listeners": srv.Clients(),
			"dropped":   srv.Dropped(),
		}).Info("Stream finished")
		if opts.Once {
			srv.Stop()
		}
		return nil
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func waitListeners(ctx context.Context, srv *stream.Server, n int) error {
	if n <= 0 {
		return nil
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for srv.Clients() < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
