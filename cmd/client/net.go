package main

import (
	"context"
	"crypto/x509"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/luca-patrignani/byzantine-bank/api"
	"github.com/luca-patrignani/byzantine-bank/config"
	"github.com/luca-patrignani/byzantine-bank/consensus"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/network"
)

// defaultPort is used for replica addresses written without a port.
const defaultPort = 7000

// coordinator dials every configured replica. Replicas without a pinned key
// are asked for it, which trusts whoever answers first.
func coordinator(ctx context.Context, cfg config.ClientConfig, backend logging.Logger, log *slog.Logger) (*consensus.Coordinator, error) {
	if len(cfg.Replicas) == 0 {
		return nil, errors.New("no replicas configured")
	}
	opts := []network.Option{network.WithTimeout(cfg.Timeout.Duration), network.WithLogger(backend)}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, errors.Wrap(err, "read ca_file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("%s holds no certificate", cfg.CAFile)
		}
		opts = append(opts, network.WithLimitedCAs(pool))
	}

	endpoints := make([]consensus.Endpoint, 0, len(cfg.Replicas))
	for _, r := range cfg.Replicas {
		address, err := replicaAddress(r.Address)
		if err != nil {
			return nil, err
		}
		c := network.NewClient(address, opts...)
		key, err := r.Key()
		if err != nil {
			return nil, err
		}
		name := address
		if key.IsZero() {
			if name, key, err = c.Identity(ctx); err != nil {
				log.Warn("replica unreachable, left out", "address", address, "error", err)
				continue
			}
			log.Warn("replica key is not pinned", "address", address, "key", key.String())
		}
		endpoints = append(endpoints, consensus.Endpoint{Name: name, Replica: c, Key: key})
	}
	if len(endpoints) < consensus.Quorum(len(cfg.Replicas)) {
		return nil, errors.Wrapf(consensus.ErrNoQuorum, "only %d of %d replicas identified", len(endpoints), len(cfg.Replicas))
	}
	// the quorum is still computed over every configured replica
	for len(endpoints) < len(cfg.Replicas) {
		endpoints = append(endpoints, consensus.Endpoint{Name: "unidentified", Replica: unreachable{}})
	}
	var copts []consensus.CoordinatorOption
	if cfg.Timeout.Duration > 0 {
		copts = append(copts, consensus.WithDeliveryTimeout(cfg.Timeout.Duration))
	}
	return consensus.NewCoordinator(endpoints, backend, copts...), nil
}

// replicaAddress normalises a configured address to host:port.
func replicaAddress(addr string) (string, error) {
	if strings.Contains(addr, "://") {
		return addr, nil
	}
	host, port, err := splitHostPort(addr, defaultPort)
	if err != nil {
		return "", errors.Wrapf(err, "replica address %q", addr)
	}
	return net.JoinHostPort(host, port), nil
}

// splitHostPort splits an address into host and port, using defaultPort if no port is specified.
func splitHostPort(addr string, defaultPort int) (string, string, error) {
	ipaddr, port, err := net.SplitHostPort(addr)
	if err != nil {
		addr = addr + ":" + strconv.Itoa(defaultPort)
		ipaddr, port, err = net.SplitHostPort(addr)
		if err != nil {
			return "", "", err
		}
	}
	return ipaddr, port, nil
}

var errUnidentified = errors.New("replica was not identified at startup")

// unreachable stands in for a replica whose key could not be fetched, so
// that it counts against the quorum without ever voting.
type unreachable struct{}

func (unreachable) OpenAccount(context.Context, api.OpenAccountRequest) (api.OpenAccountResponse, error) {
	return api.OpenAccountResponse{}, errUnidentified
}

func (unreachable) NonceNegotiation(context.Context, api.NonceRequest) (api.NonceResponse, error) {
	return api.NonceResponse{}, errUnidentified
}

func (unreachable) SendAmount(context.Context, api.SendAmountRequest) (api.SendAmountResponse, error) {
	return api.SendAmountResponse{}, errUnidentified
}

func (unreachable) ReceiveAmount(context.Context, api.ReceiveAmountRequest) (api.ReceiveAmountResponse, error) {
	return api.ReceiveAmountResponse{}, errUnidentified
}

func (unreachable) CheckAccount(context.Context, api.CheckAccountRequest) (api.CheckAccountResponse, error) {
	return api.CheckAccountResponse{}, errUnidentified
}

func (unreachable) Audit(context.Context, api.AuditRequest) (api.AuditResponse, error) {
	return api.AuditResponse{}, errUnidentified
}
