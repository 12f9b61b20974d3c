// ABOUTME: Logrus setup from configuration
// ABOUTME: Level, text or JSON formatting and outputs fanned out with io.MultiWriter
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/codecbridge/internal/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Setup configures logger from cfg. The returned closer releases log files.
func Setup(logger *logrus.Logger, cfg config.Log) (io.Closer, error) {
	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "log level %q", cfg.Level)
		}
		level = parsed
	}

	var writers []io.Writer
	var files closers
	for _, output := range cfg.Outputs {
		switch strings.ToLower(output) {
		case "", "stderr":
			writers = append(writers, os.Stderr)
		case "stdout":
			writers = append(writers, os.Stdout)
		default:
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				_ = files.Close()
				return nil, errors.Wrap(err, "log directory")
			}
			f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				_ = files.Close()
				return nil, errors.Wrap(err, "open log file")
			}
			writers = append(writers, f)
			files = append(files, f)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		_ = files.Close()
		return nil, errors.Errorf("log format %q", cfg.Format)
	}

	logger.SetLevel(level)
	logger.SetOutput(io.MultiWriter(writers...))
	return files, nil
}
