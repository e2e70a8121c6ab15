// Package discovery finds replicas listening on a range of ports of one host,
// for local clusters whose addresses are not written down yet.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/luca-patrignani/byzantine-bank/network"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

// Entry is a replica that answered on Address.
type Entry struct {
	Address   string
	Name      string
	PublicKey signature.PublicKey
}

type Discover struct {
	host      string
	startPort uint16
	endPort   uint16
	attempts  uint
	interval  time.Duration
	client    []network.Option
}

type option func(Discover) Discover

// New returns a scanner for localhost ports 7000 to 7010.
func New(opts ...option) *Discover {
	d := Discover{
		host:      "localhost",
		startPort: 7000,
		endPort:   7010,
		attempts:  1,
		interval:  time.Second,
	}
	for _, opt := range opts {
		d = opt(d)
	}
	return &d
}

func WithHost(host string) option {
	return func(d Discover) Discover {
		d.host = host
		return d
	}
}

func WithPortRange(startPort, endPort uint16) option {
	return func(d Discover) Discover {
		d.startPort = startPort
		d.endPort = endPort
		return d
	}
}

func WithPort(port uint16) option {
	return WithPortRange(port, port)
}

// WithAttempts repeats the scan, interval apart, to catch replicas that are
// still starting.
func WithAttempts(attempts uint, interval time.Duration) option {
	return func(d Discover) Discover {
		d.attempts = attempts
		d.interval = interval
		return d
	}
}

// WithClientOptions configures the identity requests, e.g. for TLS.
func WithClientOptions(opts ...network.Option) option {
	return func(d Discover) Discover {
		d.client = append(d.client, opts...)
		return d
	}
}

// Search scans the range and returns every replica that identified itself,
// ordered by port.
func (d *Discover) Search(ctx context.Context) ([]Entry, error) {
	found := make(map[uint16]Entry)
	for attempt := uint(0); attempt < d.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.interval):
			}
		}
		d.search(ctx, found)
	}

	ports := make([]int, 0, len(found))
	for p := range found {
		ports = append(ports, int(p))
	}
	sort.Ints(ports)
	entries := make([]Entry, len(ports))
	for i, p := range ports {
		entries[i] = found[uint16(p)]
	}
	return entries, nil
}

func (d *Discover) search(ctx context.Context, found map[uint16]Entry) {
	for port := int(d.startPort); port <= int(d.endPort); port++ {
		if _, ok := found[uint16(port)]; ok {
			continue
		}
		address := net.JoinHostPort(d.host, strconv.Itoa(port))
		name, key, err := network.NewClient(address, d.client...).Identity(ctx)
		if err != nil {
			continue
		}
		found[uint16(port)] = Entry{Address: address, Name: name, PublicKey: key}
	}
}

func (e Entry) String() string {
	return fmt.Sprintf("%s (%s) %s", e.Name, e.Address, e.PublicKey)
}
