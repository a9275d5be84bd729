package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitLogger(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Level:      "info",
		Filename:   filepath.Join(dir, "test.log"),
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	}

	err := InitLogger(cfg)
	assert.NoError(t, err)
	assert.NotNil(t, Log)

	Log.Info("hello")
	Sync()

	_, err = os.Stat(cfg.Filename)
	assert.NoError(t, err)
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	cfg := &Config{Level: "not-a-level", Filename: filepath.Join(t.TempDir(), "x.log")}
	err := InitLogger(cfg)
	assert.Error(t, err)
}
