// Package config loads the TOML configuration shared by the replica and
// client commands.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/byzantine-bank/ledger"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/signature"
	"github.com/luca-patrignani/byzantine-bank/throttle"
)

// MemoryLedger as ledger_path keeps the ledger in process.
const MemoryLedger = ":memory:"

// Duration is a time.Duration written as "400ms" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Config struct {
	Replica ReplicaConfig `toml:"replica"`
	Log     LogConfig     `toml:"log"`
	Client  ClientConfig  `toml:"client"`
}

type ReplicaConfig struct {
	Name             string   `toml:"name"`
	ListenAddress    string   `toml:"listen_address"`
	LedgerPath       string   `toml:"ledger_path"`
	KeyPath          string   `toml:"key_path"`
	OpeningBalance   string   `toml:"opening_balance"`
	ThrottleInterval Duration `toml:"throttle_interval"`
	TLSSelfSigned    bool     `toml:"tls_self_signed"`
	CertPath         string   `toml:"cert_path"`
}

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

type ClientConfig struct {
	KeyPath  string            `toml:"key_path"`
	Timeout  Duration          `toml:"timeout"`
	CAFile   string            `toml:"ca_file,omitempty"`
	Replicas []ReplicaEndpoint `toml:"replicas"`
}

// ReplicaEndpoint is a replica the client talks to. PublicKey pins the key
// its responses must be signed with; when empty the client asks the replica.
type ReplicaEndpoint struct {
	Address   string `toml:"address"`
	PublicKey string `toml:"public_key,omitempty"`
}

// Default returns a configuration for a single local replica.
func Default() Config {
	return Config{
		Replica: ReplicaConfig{
			Name:             "replica0",
			ListenAddress:    "localhost:7000",
			LedgerPath:       "ledger.txt",
			KeyPath:          "replica.key",
			OpeningBalance:   "1000",
			ThrottleInterval: Duration{throttle.DefaultInterval},
			CertPath:         "replica.crt",
		},
		Log: LogConfig{Level: "info"},
		Client: ClientConfig{
			KeyPath:  "client.key",
			Timeout:  Duration{5 * time.Second},
			Replicas: []ReplicaEndpoint{{Address: "localhost:7000"}},
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults;
// unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, cfg.Validate()
}

// Write stores cfg at path, failing if the file exists.
func Write(path string, cfg Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrap(err, "write config")
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return errors.Wrap(err, "encode config")
	}
	return f.Close()
}

// Validate checks the values Load cannot check by type alone.
func (c Config) Validate() error {
	if _, err := c.Replica.Opening(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	for i, r := range c.Client.Replicas {
		if r.Address == "" {
			return errors.Errorf("client.replicas[%d]: empty address", i)
		}
		if _, err := r.Key(); err != nil {
			return errors.Wrapf(err, "client.replicas[%d]", i)
		}
	}
	return nil
}

// Opening parses opening_balance. Zero is an error, not a request for the
// default.
func (r ReplicaConfig) Opening() (decimal.Decimal, error) {
	d, err := ledger.ParseAmount(r.OpeningBalance)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, errors.Errorf("opening_balance %q is not a positive decimal", r.OpeningBalance)
	}
	return d, nil
}

// InMemory reports whether the ledger is kept in process.
func (r ReplicaConfig) InMemory() bool { return r.LedgerPath == MemoryLedger }

// Key parses the pinned public key. The zero key means none is pinned.
func (e ReplicaEndpoint) Key() (key signature.PublicKey, err error) {
	if e.PublicKey == "" {
		return key, nil
	}
	return signature.ParsePublicKeyString(e.PublicKey)
}

// Apply configures log from the [log] section.
func (l LogConfig) Apply(log logging.Logger) error {
	lvl, err := logging.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	if l.JSON {
		log.SetJSONFormatter()
	}
	return nil
}
