package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bank.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	key := signature.GenerateKey().Public
	path := writeFile(t, `
[replica]
name = "r1"
ledger_path = ":memory:"
throttle_interval = "1s"

[log]
level = "debug"
json = true

[client]
timeout = "250ms"

[[client.replicas]]
address = "localhost:7001"
public_key = "`+key.String()+`"

[[client.replicas]]
address = "localhost:7002"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "r1", cfg.Replica.Name)
	assert.True(t, cfg.Replica.InMemory())
	assert.Equal(t, time.Second, cfg.Replica.ThrottleInterval.Duration)
	assert.Equal(t, "localhost:7000", cfg.Replica.ListenAddress, "unset keys keep their default")
	assert.Equal(t, 250*time.Millisecond, cfg.Client.Timeout.Duration)
	require.Len(t, cfg.Client.Replicas, 2)

	pinned, err := cfg.Client.Replicas[0].Key()
	require.NoError(t, err)
	assert.True(t, pinned.Equal(key))
	unpinned, err := cfg.Client.Replicas[1].Key()
	require.NoError(t, err)
	assert.True(t, unpinned.IsZero())

	log := logging.TestingLog(t)
	assert.NoError(t, cfg.Log.Apply(log))
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "[replica]\nnmae = \"typo\"\n",
		"bad duration":    "[replica]\nthrottle_interval = \"soon\"\n",
		"bad balance":     "[replica]\nopening_balance = \"-3\"\n",
		"bad level":       "[log]\nlevel = \"loud\"\n",
		"bad pinned key":  "[[client.replicas]]\naddress = \"x:1\"\npublic_key = \"AAAA\"\n",
		"missing address": "[[client.replicas]]\npublic_key = \"\"\n",
		"not toml":        "[replica\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, content))
			assert.Error(t, err)
		})
	}
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.toml")
	want := Default()
	want.Client.Replicas = append(want.Client.Replicas, ReplicaEndpoint{
		Address:   "localhost:7001",
		PublicKey: signature.GenerateKey().Public.String(),
	})
	require.NoError(t, Write(path, want))
	assert.Error(t, Write(path, want), "existing files are not overwritten")

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config changed through a write (-want +got):\n%s", diff)
	}
}

func TestMissingFileIsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("(-default +loaded):\n%s", diff)
	}
}

func TestDefaultOpening(t *testing.T) {
	d, err := Default().Replica.Opening()
	require.NoError(t, err)
	assert.Equal(t, "1000", d.String())

	for _, bad := range []string{"0", "-1", "", "1e400000000"} {
		cfg := Default()
		cfg.Replica.OpeningBalance = bad
		assert.Error(t, cfg.Validate(), "opening_balance %q", bad)
	}
}
