package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/byzantine-bank/config"
	"github.com/luca-patrignani/byzantine-bank/ledger"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/network"
	"github.com/luca-patrignani/byzantine-bank/replica"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay the ledger and serve requests until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := logging.NewLogger()
		if err := cfg.Log.Apply(log); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		n, err := start(cfg.Replica, log)
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			log.Infof("shutting down")
		case err = <-n.done:
			log.Errorf("server stopped: %v", err)
		}
		return errors.Wrap(n.Close(), "shutdown")
	},
}

// node is a running replica with its listener.
type node struct {
	replica *replica.Replica
	server  *network.Server
	addr    string
	done    <-chan error
}

func start(cfg config.ReplicaConfig, log logging.Logger) (*node, error) {
	opening, err := cfg.Opening()
	if err != nil {
		return nil, err
	}
	key, created, err := signature.LoadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return nil, err
	}
	if created {
		log.Infof("generated replica key %s at %s", key.Public, cfg.KeyPath)
	}

	var store ledger.Store
	if cfg.InMemory() {
		log.Warnf("ledger kept in memory, state is lost on exit")
		store = ledger.NewMemoryStore()
	} else if store, err = ledger.OpenFile(cfg.LedgerPath, log); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r, err := replica.New(replica.Options{
		Name:             cfg.Name,
		Key:              key,
		Store:            store,
		OpeningBalance:   opening,
		ThrottleInterval: cfg.ThrottleInterval.Duration,
		Logger:           log,
		Registry:         reg,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	l, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		r.Close()
		return nil, errors.Wrapf(err, "listen on %s", cfg.ListenAddress)
	}
	opts := []network.Option{network.WithLogger(log), network.WithMetrics(reg)}
	if cfg.TLSSelfSigned {
		cert, pem, err := network.GenerateSelfSignedCert(l.Addr().String())
		if err != nil {
			l.Close()
			r.Close()
			return nil, err
		}
		if err := os.WriteFile(cfg.CertPath, pem, 0o644); err != nil {
			l.Close()
			r.Close()
			return nil, errors.Wrap(err, "write certificate")
		}
		log.Infof("self-signed certificate written to %s", cfg.CertPath)
		opts = append(opts, network.WithCertificate(cert))
	}

	s := network.NewServer(r, opts...)
	log.Infof("replica %s key %s", cfg.Name, key.Public)
	return &node{replica: r, server: s, addr: l.Addr().String(), done: s.Start(l)}, nil
}

func (n *node) Close() error {
	err := n.server.Close()
	if cerr := n.replica.Close(); err == nil {
		err = cerr
	}
	return err
}
