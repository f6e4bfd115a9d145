package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "debug", "json"))
	t.Cleanup(func() { _ = SetupWriter(&bytes.Buffer{}, "info", "text") })

	Component("INDEXER").Debug("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INDEXER", line["component"])
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestSetupWriter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{name: "bad level", level: "loud", format: "text"},
		{name: "bad format", level: "info", format: "xml"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, SetupWriter(&bytes.Buffer{}, tc.level, tc.format))
		})
	}
}
