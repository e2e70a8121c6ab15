package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/byzantine-bank/api"
	"github.com/luca-patrignani/byzantine-bank/client"
	"github.com/luca-patrignani/byzantine-bank/config"
	"github.com/luca-patrignani/byzantine-bank/consensus"
	"github.com/luca-patrignani/byzantine-bank/discovery"
	"github.com/luca-patrignani/byzantine-bank/ledger"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/network"
	"github.com/luca-patrignani/byzantine-bank/replica"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

func TestSplitHostPort(t *testing.T) {
	cases := []struct {
		in, host, port string
	}{
		{"10.0.0.1:9000", "10.0.0.1", "9000"},
		{"10.0.0.1", "10.0.0.1", "7000"},
		{"replica.local", "replica.local", "7000"},
		{"[::1]:81", "::1", "81"},
	}
	for _, c := range cases {
		host, port, err := splitHostPort(c.in, defaultPort)
		if err != nil {
			t.Fatal(err)
		}
		if host != c.host || port != c.port {
			t.Fatalf("splitHostPort(%q) = %q, %q; expected %q, %q", c.in, host, port, c.host, c.port)
		}
	}
}

func TestReplicaAddress(t *testing.T) {
	addr, err := replicaAddress("https://r0.example:443")
	require.NoError(t, err)
	assert.Equal(t, "https://r0.example:443", addr)

	addr, err = replicaAddress("127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", addr)
}

// cluster serves n replicas and returns a client config pointing at them.
// Every other replica has its key pinned.
func cluster(t *testing.T, n int) config.ClientConfig {
	t.Helper()
	cfg := config.Default().Client
	cfg.KeyPath = filepath.Join(t.TempDir(), "client.key")
	cfg.Replicas = nil
	listeners, addresses := network.CreateListeners(n)
	for i := 0; i < n; i++ {
		key := signature.GenerateKey()
		r, err := replica.New(replica.Options{
			Name:   fmt.Sprintf("r%d", i),
			Key:    key,
			Store:  ledger.NewMemoryStore(),
			Logger: logging.TestingLog(t),
		})
		require.NoError(t, err)
		s := network.NewServer(r, network.WithLogger(logging.TestingLog(t)))
		done := s.Start(listeners[i])
		t.Cleanup(func() {
			assert.NoError(t, s.Close())
			<-done
		})
		ep := config.ReplicaEndpoint{Address: addresses[i]}
		if i%2 == 0 {
			ep.PublicKey = key.Public.String()
		}
		cfg.Replicas = append(cfg.Replicas, ep)
	}
	return cfg
}

func testSession(t *testing.T, cfg config.ClientConfig) *session {
	t.Helper()
	s, err := connect(context.Background(), cfg, logging.TestingLog(t), slog.Default())
	require.NoError(t, err)
	return s
}

func TestSessionAgainstCluster(t *testing.T) {
	ctx := context.Background()
	cfg := cluster(t, 3)
	alice := testSession(t, cfg)
	require.NoError(t, alice.client.OpenAccount(ctx))

	other := cfg
	other.KeyPath = filepath.Join(t.TempDir(), "bob.key")
	bobSession := testSession(t, other)
	require.NoError(t, bobSession.client.OpenAccount(ctx))

	require.NoError(t, alice.client.Send(ctx, bobSession.key.Public, decimal.NewFromInt(40)))
	a, err := bobSession.client.Check(ctx, bobSession.key.Public)
	require.NoError(t, err)
	require.Len(t, a.Pending, 1)

	panel, err := accountPanel(bobSession.key.Public, a, bobSession.key.Public)
	require.NoError(t, err)
	assert.Contains(t, panel, "1000")
	assert.Contains(t, panel, "40")

	err = bobSession.client.Receive(ctx, alice.key.Public, decimal.NewFromInt(41), true)
	assert.Equal(t, api.StatusNoSuchTransaction, client.StatusOf(err))
	assert.Contains(t, explain(err).Error(), "no pending transfer matches")
}

func TestSessionNeedsQuorumOfIdentities(t *testing.T) {
	cfg := cluster(t, 3)
	// only the pinned first replica is usable, one of four
	cfg.Replicas[1].Address = "127.0.0.1:1"
	cfg.Replicas = append(cfg.Replicas, config.ReplicaEndpoint{Address: "127.0.0.1:2"})
	cfg.Replicas[2].PublicKey = ""
	cfg.Replicas[2].Address = "127.0.0.1:3"
	_, err := connect(context.Background(), cfg, logging.TestingLog(t), slog.Default())
	assert.True(t, errors.Is(err, consensus.ErrNoQuorum), "%v", err)
}

func TestParseTransfer(t *testing.T) {
	key := signature.GenerateKey().Public
	got, amount, err := parseTransfer([]string{key.String(), "12.50"})
	require.NoError(t, err)
	assert.True(t, got.Equal(key))
	assert.Equal(t, "12.5", amount.String())

	for _, bad := range [][]string{{"nope", "1"}, {key.String(), "0"}, {key.String(), "x"}, {key.String(), "1e400000000"}} {
		_, _, err := parseTransfer(bad)
		assert.Error(t, err, strings.Join(bad, " "))
	}
}

func TestHistoryPanel(t *testing.T) {
	self := signature.GenerateKey().Public
	other := signature.GenerateKey().Public
	empty, err := historyPanel(self, nil, self)
	require.NoError(t, err)
	assert.Contains(t, empty, "No settled transfers")

	panel, err := historyPanel(self, []client.Transfer{{Source: other, Destination: self, Amount: decimal.NewFromInt(7)}}, self)
	require.NoError(t, err)
	assert.Contains(t, panel, "you")
	assert.Contains(t, panel, "7")
}

func TestDiscoveredConfigRoundTrips(t *testing.T) {
	key := signature.GenerateKey().Public
	entries := []discovery.Entry{{Address: "localhost:7001", Name: "r1", PublicKey: key}}

	path := filepath.Join(t.TempDir(), "bank.toml")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, toml.NewEncoder(f).Encode(discoveredConfig(entries)))
	require.NoError(t, f.Close())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Client.Replicas, 1)
	pinned, err := cfg.Client.Replicas[0].Key()
	require.NoError(t, err)
	assert.True(t, pinned.Equal(key))
}
