package discovery

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/luca-patrignani/byzantine-bank/ledger"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/network"
	"github.com/luca-patrignani/byzantine-bank/replica"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

func newServer(t *testing.T, port int) (*network.Server, *replica.Replica, net.Listener, error) {
	l, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return nil, nil, nil, err
	}
	r, err := replica.New(replica.Options{
		Name:   fmt.Sprint(port),
		Key:    signature.GenerateKey(),
		Store:  ledger.NewMemoryStore(),
		Logger: logging.TestingLog(t),
	})
	if err != nil {
		l.Close()
		return nil, nil, nil, err
	}
	return network.NewServer(r, network.WithLogger(logging.TestingLog(t))), r, l, nil
}

func serveOn(t *testing.T, port int) *replica.Replica {
	s, r, l, err := newServer(t, port)
	if err != nil {
		t.Skipf("port %d unavailable: %v", port, err)
	}
	done := s.Start(l)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Error(err)
		}
		<-done
	})
	return r
}

func TestDiscover(t *testing.T) {
	ports := []int{9100, 9101, 9103}
	replicas := make(map[string]*replica.Replica)
	for _, p := range ports {
		replicas[fmt.Sprint(p)] = serveOn(t, p)
	}

	entries, err := New(WithPortRange(9100, 9104)).Search(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(ports) {
		t.Fatalf("expected %d entries, found %v", len(ports), entries)
	}
	for i, e := range entries {
		if e.Address != fmt.Sprintf("localhost:%d", ports[i]) {
			t.Fatalf("entry %d: expected port %d, actual %s", i, ports[i], e.Address)
		}
		if !e.PublicKey.Equal(replicas[e.Name].PublicKey()) {
			t.Fatalf("entry %s carries the wrong key", e)
		}
	}
}

func TestDiscoverLateReplica(t *testing.T) {
	const port = 9110
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	started := make(chan *network.Server, 1)
	go func() {
		time.Sleep(300 * time.Millisecond)
		s, _, l, err := newServer(t, port)
		if err != nil {
			started <- nil
			return
		}
		s.Start(l)
		started <- s
	}()
	entries, err := New(WithPort(port), WithAttempts(5, 200*time.Millisecond)).Search(ctx)
	s := <-started
	if s == nil {
		t.Skipf("port %d unavailable", port)
	}
	defer s.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the late replica to be found, found %v", entries)
	}
}
