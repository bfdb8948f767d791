package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Output: &buf})

	log.Info("quiet")
	log.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "chatty", Output: &buf})

	log.Debug("hidden")
	log.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNamedJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Named(New(Options{JSON: true, Output: &buf}), Syscall)

	log.Info("trap", "pid", 3)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	assert.Equal(t, "kernos.syscall", line["@module"])
	assert.Equal(t, "trap", line["@message"])
	assert.EqualValues(t, 3, line["pid"])
}

func TestNamedNilRoot(t *testing.T) {
	log := Named(nil, Kernel)
	require.NotNil(t, log)
	log.Error("dropped")
}
