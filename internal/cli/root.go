// ABOUTME: Root command and shared command state
// ABOUTME: Loads configuration and logging before any subcommand runs
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/codecbridge/internal/config"
	"github.com/Resonate-Protocol/codecbridge/internal/logging"
	"github.com/Resonate-Protocol/codecbridge/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type globalOptions struct {
	ConfigFile string
	LogLevel   string
	LogFormat  string
	LogFile    string
}

// app is shared by every command of one invocation
type app struct {
	opts     globalOptions
	viper    *viper.Viper
	cfg      *config.Config
	logger   *logrus.Logger
	logs     io.Closer
	bindings map[*cobra.Command]map[string]string
}

func newApp() *app {
	return &app{
		logger:   logrus.StandardLogger(),
		bindings: make(map[*cobra.Command]map[string]string),
	}
}

// bind maps flags of cmd onto config keys
func (a *app) bind(cmd *cobra.Command, keys map[string]string) {
	a.bindings[cmd] = keys
}

func (a *app) load(cmd *cobra.Command) error {
	v, err := config.New(a.opts.ConfigFile)
	if err != nil {
		return err
	}
	keys := map[string]string{"log-level": "log.level", "log-format": "log.format"}
	for flag, key := range a.bindings[cmd] {
		keys[flag] = key
	}
	if err := config.BindFlags(v, cmd.Flags(), keys); err != nil {
		return err
	}
	cfg, err := config.Unmarshal(v)
	if err != nil {
		return err
	}
	if a.opts.LogFile != "" {
		cfg.Log.Outputs = append(cfg.Log.Outputs, a.opts.LogFile)
	}
	a.viper, a.cfg = v, cfg
	return a.setupLogging(cfg.Log)
}

func (a *app) setupLogging(cfg config.Log) error {
	if a.logs != nil {
		_ = a.logs.Close()
	}
	closer, err := logging.Setup(a.logger, cfg)
	if err != nil {
		return err
	}
	a.logs = closer
	return nil
}

// quietConsole keeps only file outputs, or discards logs when there are
// none, so a full screen UI owns the terminal
func (a *app) quietConsole() error {
	var files []string
	for _, out := range a.cfg.Log.Outputs {
		if out != "" && out != "stderr" && out != "stdout" {
			files = append(files, out)
		}
	}
	if len(files) == 0 {
		a.logger.SetOutput(io.Discard)
		return nil
	}
	cfg := a.cfg.Log
	cfg.Outputs = files
	return a.setupLogging(cfg)
}

func (a *app) close() error {
	if a.logs == nil {
		return nil
	}
	err := a.logs.Close()
	a.logs = nil
	return err
}

func (a *app) entry(cmd string) *logrus.Entry {
	return a.logger.WithField("cmd", cmd)
}

func addGlobalFlags(cmd *cobra.Command, a *app) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.opts.ConfigFile, "config", "c", "", "Config file (default: ./config.yaml, $HOME/.codecbridge/config.yaml)")
	flags.StringVar(&a.opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.opts.LogFormat, "log-format", "text", "Log format (text or json)")
	flags.StringVar(&a.opts.LogFile, "log-file", "", "Also write logs to this file")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.load(cmd)
	}
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		return a.close()
	}
}

// NewRootCommand builds the codecbridge command tree
func NewRootCommand() *cobra.Command {
	a := newApp()
	cmd := &cobra.Command{
		Use:   "codecbridge",
		Short: "Drive asynchronous audio codecs from files and streams",
		Long: `codecbridge runs callback-driven audio codecs through a producer/consumer session.
It decodes, encodes and transcodes files, stress-tests concurrent sessions and
streams codec output to websocket listeners.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(version.String() + "\n")
	addGlobalFlags(cmd, a)

	cmd.AddCommand(NewListCommand(a))
	cmd.AddCommand(NewProbeCommand(a))
	cmd.AddCommand(NewDecodeCommand(a))
	cmd.AddCommand(NewEncodeCommand(a))
	cmd.AddCommand(NewTranscodeCommand(a))
	cmd.AddCommand(NewStressCommand(a))
	cmd.AddCommand(NewServeCommand(a))
	cmd.AddCommand(NewListenCommand(a))
	cmd.AddCommand(NewDiscoverCommand(a))
	return cmd
}

// NewServerCommand builds a standalone serve command with the global flags
func NewServerCommand() *cobra.Command {
	a := newApp()
	cmd := NewServeCommand(a)
	cmd.Use = "codecbridge-server <input>"
	cmd.Version = version.Version
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetVersionTemplate(version.String() + "\n")
	addGlobalFlags(cmd, a)
	return cmd
}

// Execute runs cmd until it finishes or the process is interrupted
func Execute(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd.ExecuteContext(ctx)
}
