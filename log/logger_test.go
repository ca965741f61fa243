/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.File.Path = path
	cfg.Level = LevelInfo

	logger, closeFn := NewLogger(cfg)
	logger.Debug("hidden")
	logger.With(String("component", "relay")).Info("sent", Int("status", 204))
	logger.Warnf("retry %d", 2)
	closeFn()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	require.Equal(t, "sent", lines[0]["msg"])
	require.True(t, strings.EqualFold("info", lines[0]["level"].(string)))
	require.Equal(t, "relay", lines[0]["component"])
	require.EqualValues(t, 204, lines[0]["status"])
	require.Contains(t, lines[0], "time")
	require.Contains(t, lines[0], "pid")

	require.Equal(t, "retry 2", lines[1]["msg"])
	require.True(t, strings.EqualFold("warn", lines[1]["level"].(string)))
}

func TestNewDisabledLogger(t *testing.T) {
	logger := NewDisabledLogger()
	logger.Error("nothing happens")
	logger.With(String("k", "v")).Infof("still %s", "nothing")
}
