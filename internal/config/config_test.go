package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
group_key = "`+repeatHex(32)+`"
channel_index = 1

[mesh]
port = "/dev/ttyACM0"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint32(1), cfg.ChannelIndex)
	require.Equal(t, "/dev/ttyACM0", cfg.Mesh.Port)
	require.False(t, cfg.MQTTEnabled())

	key, err := cfg.BridgedGroupKey()
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestLoad_BadKeyLengthIsFatal(t *testing.T) {
	path := writeConfig(t, `
group_key = "abcd"
channel_index = 1
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MQTTBlockEnablesUplink(t *testing.T) {
	path := writeConfig(t, `
group_key = "`+repeatHex(32)+`"
channel_index = 1

[mqtt]
broker = "tcp://localhost:1883"
topic_root = "msh/US"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.MQTTEnabled())
	require.Equal(t, "msh/US", cfg.MQTT.TopicRoot)
}

func repeatHex(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		out = append(out, '4', '2')
	}
	return string(out)
}
