// ABOUTME: stress command
// ABOUTME: Decodes one input in many concurrent sessions and checks they agree
package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/Resonate-Protocol/codecbridge/internal/ui"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/Resonate-Protocol/codecbridge/pkg/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type stressOptions struct {
	Source sourceOptions
	TUI    bool
}

// digestSink hashes everything written to it
type digestSink struct {
	mu    sync.Mutex
	h     hash.Hash
	bytes atomic.Int64
}

func newDigestSink() *digestSink {
	return &digestSink{h: sha256.New()}
}

func (d *digestSink) Write(data []byte, _ codec.BufferInfo) error {
	d.mu.Lock()
	d.h.Write(data)
	d.mu.Unlock()
	d.bytes.Add(int64(len(data)))
	return nil
}

func (d *digestSink) Sum() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return hex.EncodeToString(d.h.Sum(nil))
}

type stressRun struct {
	sessions []*session.Session
	sources  []demux.Source
	sinks    []*digestSink
	results  []error
	done     []atomic.Bool
}

func (r *stressRun) close() {
	for _, s := range r.sessions {
		if s != nil {
			_ = s.Release()
		}
	}
	for _, src := range r.sources {
		if src != nil {
			_ = src.Close()
		}
	}
}

func (r *stressRun) status(i int) ui.SessionStatus {
	s := r.sessions[i]
	stats := s.Stats()
	producer, consumer := s.WorkerStates()
	st := ui.SessionStatus{
		ID:       s.ID(),
		Codec:    s.Codec().Name(),
		State:    s.State().String(),
		Producer: producer.String(),
		Consumer: consumer.String(),
		InputsIn: stats.InputsQueued,
		BytesIn:  stats.BytesIn,
		BytesOut: stats.BytesOut,
		Stale:    stats.StaleEvents,
		Degraded: s.Degraded(),
		Done:     r.done[i].Load(),
	}
	if st.Done && r.results[i] != nil {
		st.Err = r.results[i].Error()
	}
	return st
}

// NewStressCommand runs concurrent decode sessions
func NewStressCommand(a *app) *cobra.Command {
	opts := &stressOptions{}
	cmd := &cobra.Command{
		Use:   "stress <input>",
		Short: "Decode one input in many concurrent sessions",
		Long: `Stress opens the input once per session and decodes every copy concurrently.
All sessions must finish and produce identical output. With --tui the
dashboard stays up after the run until q is pressed.`,
		Example: `  codecbridge stress song.aac
  codecbridge stress -n 64 --tui song.flac`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd, a, args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.IntP("sessions", "n", 16, "Number of concurrent sessions")
	flags.Duration("timeout", 2*time.Minute, "Abort the run after this long")
	flags.BoolVar(&opts.TUI, "tui", false, "Show a live dashboard")
	addSourceFlags(cmd, &opts.Source)
	addCodecFlags(cmd)
	a.bind(cmd, withCodecBindings(map[string]string{
		"sessions": "stress.sessions",
		"timeout":  "stress.timeout",
	}))
	return cmd
}

func newStressRun(a *app, path string, opts *stressOptions, n int) (*stressRun, error) {
	r := &stressRun{
		sessions: make([]*session.Session, n),
		sources:  make([]demux.Source, n),
		sinks:    make([]*digestSink, n),
		results:  make([]error, n),
		done:     make([]atomic.Bool, n),
	}
	for i := 0; i < n; i++ {
		src, err := demux.Open(path, opts.Source.demux()...)
		if err != nil {
			r.close()
			return nil, err
		}
		r.sources[i] = src
		r.sinks[i] = newDigestSink()

		c, err := codec.CreateByMime(src.Info().Mime, codec.KindDecoder, a.cfg.Codec.Options()...)
		if err != nil {
			r.close()
			return nil, err
		}
		s, err := session.New(c, session.Config{
			Source: src,
			Sink:   r.sinks[i],
			Logger: a.entry("stress").WithField("index", i),
		})
		if err != nil {
			_ = c.Release()
			r.close()
			return nil, err
		}
		r.sessions[i] = s
	}
	return r, nil
}

func (r *stressRun) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range r.sessions {
		g.Go(func() error {
			err := drive(gctx, r.sessions[i], r.sources[i].Info().Format)
			r.results[i] = err
			r.done[i].Store(true)
			return errors.Wrapf(err, "session %d", i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	want := r.sinks[0].Sum()
	for i, d := range r.sinks[1:] {
		if got := d.Sum(); got != want {
			return errors.Errorf("session %d output %s differs from session 0 output %s", i+1, got[:12], want[:12])
		}
	}
	return nil
}

func runStress(cmd *cobra.Command, a *app, path string, opts *stressOptions) error {
	n := a.cfg.Stress.Sessions
	if n < 1 {
		return errors.Errorf("need at least one session, got %d", n)
	}
	log := a.entry("stress")

	r, err := newStressRun(a, path, opts, n)
	if err != nil {
		return err
	}
	defer r.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Stress.Timeout)
	defer cancel()

	start := time.Now()
	if opts.TUI {
		err = runStressTUI(ctx, cancel, a, r, path)
	} else {
		err = r.run(ctx)
	}
	elapsed := time.Since(start)

	if !opts.TUI {
		printStressSummary(cmd, r)
	}
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"sessions": n,
		"elapsed":  elapsed.Round(time.Millisecond),
		"digest":   r.sinks[0].Sum()[:12],
	}).Info("All sessions produced identical output")
	return nil
}

func runStressTUI(ctx context.Context, cancel context.CancelFunc, a *app, r *stressRun, path string) error {
	if err := a.quietConsole(); err != nil {
		return err
	}
	dash := ui.NewDashboard(fmt.Sprintf("codecbridge stress: %d x %s", len(r.sessions), path))

	result := make(chan error, 1)
	go func() {
		result <- r.run(ctx)
	}()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case err := <-result:
				for i := range r.sessions {
					dash.Update(r.status(i))
				}
				dash.Finish(err)
				result <- err
				return
			case <-ticker.C:
				for i := range r.sessions {
					dash.Update(r.status(i))
				}
			}
		}
	}()

	go func() {
		<-dash.QuitChan()
		cancel()
	}()

	if err := dash.Run(); err != nil {
		cancel()
		return errors.Wrap(err, "dashboard")
	}
	cancel()
	return <-result
}

func printStressSummary(cmd *cobra.Command, r *stressRun) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTATE\tINPUTS\tBYTES IN\tBYTES OUT\tDIGEST\tRESULT")
	for i := range r.sessions {
		st := r.status(i)
		result := "ok"
		if r.results[i] != nil {
			result = r.results[i].Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			st.ID[:8], st.State, st.InputsIn, st.BytesIn, st.BytesOut, r.sinks[i].Sum()[:12], result)
	}
	_ = w.Flush()
}
