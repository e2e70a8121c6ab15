package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger()
	l.SetOutput(&buf)
	l.SetLevel(Warn)

	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "shown 2")
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger()
	l.SetOutput(&buf)
	l.SetJSONFormatter()

	l.With("replica", "r1").WithFields(Fields{"op": "send"}).Info("done")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	require.Equal(t, "r1", entry["replica"])
	require.Equal(t, "send", entry["op"])
	require.Equal(t, "done", entry["msg"])
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, Debug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, Info, lvl)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}
