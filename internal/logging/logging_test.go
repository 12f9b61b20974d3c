package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Resonate-Protocol/codecbridge/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "codecbridge.log")
	logger := logrus.New()

	closer, err := Setup(logger, config.Log{Level: "debug", Format: "json", Outputs: []string{path}})
	require.NoError(t, err)
	logger.WithField("session", "abc").Debug("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestSetupRejectsBadValues(t *testing.T) {
	_, err := Setup(logrus.New(), config.Log{Level: "loud"})
	assert.Error(t, err)
	_, err = Setup(logrus.New(), config.Log{Format: "xml"})
	assert.Error(t, err)
}

func TestSetupDefaultsToStderr(t *testing.T) {
	logger := logrus.New()
	closer, err := Setup(logger, config.Log{})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
