package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/luca-patrignani/byzantine-bank/api"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

// ErrNoQuorum is returned when the replies never reach a quorum.
var ErrNoQuorum = errors.New("no quorum among replica responses")

// Endpoint is one replica as seen by a coordinator: how to reach it and the
// key its responses must be signed with.
type Endpoint struct {
	Name    string
	Replica api.Replica
	Key     signature.PublicKey
}

// DefaultDeliveryTimeout bounds how long a write keeps being delivered to
// replicas that had not answered when the quorum decided.
const DefaultDeliveryTimeout = 30 * time.Second

// Coordinator implements api.Replica on top of a fixed replica set. Each
// call is a logical request decided by majority.
//
// Reads stop querying as soon as they are decided. Writes are delivered to
// every replica even after the decision, so that a replica that was merely
// slow does not fall behind on the account's sequence nonce.
type Coordinator struct {
	endpoints []Endpoint
	log       logging.Logger
	delivery  time.Duration
	inflight  sync.WaitGroup
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithDeliveryTimeout overrides DefaultDeliveryTimeout.
func WithDeliveryTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.delivery = d
	}
}

// NewCoordinator returns a coordinator over endpoints.
func NewCoordinator(endpoints []Endpoint, log logging.Logger, opts ...CoordinatorOption) *Coordinator {
	eps := make([]Endpoint, len(endpoints))
	copy(eps, endpoints)
	if log == nil {
		log = logging.NewLogger()
	}
	c := &Coordinator{endpoints: eps, log: log, delivery: DefaultDeliveryTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Size returns the number of replicas.
func (c *Coordinator) Size() int { return len(c.endpoints) }

// Wait blocks until every request fan-out has finished, including writes
// still being delivered after their decision. Call it before exiting.
func (c *Coordinator) Wait() { c.inflight.Wait() }

type fanout int

const (
	read fanout = iota
	write
)

// collect queries every endpoint concurrently and returns the first decided
// majority. Replies failing check are treated as forged and dropped.
//
// A read fan-out is cancelled once decided. A write fan-out runs detached
// from ctx, bounded by the delivery timeout, and outlives the decision.
func collect[K comparable, R any](
	ctx context.Context,
	c *Coordinator,
	op string,
	kind fanout,
	call func(context.Context, api.Replica) (R, error),
	check func(Endpoint, R) bool,
	key func(R) K,
) (R, error) {
	var zero R
	log := c.log.WithFields(logging.Fields{"op": op, "request": uuid.NewString()})

	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if kind == write {
		callCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), c.delivery)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	replies := make(chan R, len(c.endpoints))
	var g errgroup.Group
	for _, ep := range c.endpoints {
		ep := ep
		g.Go(func() error {
			resp, err := call(callCtx, ep.Replica)
			if err != nil {
				log.Debugf("replica %s: %v", ep.Name, err)
				return nil
			}
			if !check(ep, resp) {
				log.Warnf("replica %s returned a response that does not verify", ep.Name)
				return nil
			}
			replies <- resp
			return nil
		})
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		_ = g.Wait()
		cancel()
		close(replies)
	}()

	intent := NewIntent[K, R]()
	received := 0
	for {
		select {
		case resp, ok := <-replies:
			if !ok {
				return zero, errors.Wrapf(ErrNoQuorum, "%s: %d valid replies of %d, need %d",
					op, received, len(c.endpoints), Quorum(len(c.endpoints)))
			}
			received++
			if intent.AddResponse(key(resp), resp, len(c.endpoints)) {
				decision, _ := intent.Majority()
				log.Debugf("decided after %d of %d replies", received, len(c.endpoints))
				return decision, nil
			}
		case <-ctx.Done():
			return zero, errors.Wrap(ctx.Err(), op)
		}
	}
}

func (c *Coordinator) OpenAccount(ctx context.Context, req api.OpenAccountRequest) (api.OpenAccountResponse, error) {
	return collect(ctx, c, "open", write,
		func(ctx context.Context, r api.Replica) (api.OpenAccountResponse, error) { return r.OpenAccount(ctx, req) },
		func(ep Endpoint, resp api.OpenAccountResponse) bool {
			return resp.Challenge == req.Challenge && resp.VerifySignature(ep.Key)
		},
		func(resp api.OpenAccountResponse) api.Status { return resp.Status },
	)
}

type nonceKey struct {
	Status api.Status
	Nonce  signature.Nonce
}

func (c *Coordinator) NonceNegotiation(ctx context.Context, req api.NonceRequest) (api.NonceResponse, error) {
	return collect(ctx, c, "nonce", read,
		func(ctx context.Context, r api.Replica) (api.NonceResponse, error) { return r.NonceNegotiation(ctx, req) },
		func(ep Endpoint, resp api.NonceResponse) bool {
			return resp.Challenge == req.Challenge && resp.VerifySignature(ep.Key)
		},
		func(resp api.NonceResponse) nonceKey { return nonceKey{resp.Status, resp.Nonce} },
	)
}

func (c *Coordinator) SendAmount(ctx context.Context, req api.SendAmountRequest) (api.SendAmountResponse, error) {
	return collect(ctx, c, "send", write,
		func(ctx context.Context, r api.Replica) (api.SendAmountResponse, error) { return r.SendAmount(ctx, req) },
		func(ep Endpoint, resp api.SendAmountResponse) bool {
			return resp.Nonce == req.Nonce && resp.VerifySignature(ep.Key)
		},
		func(resp api.SendAmountResponse) api.Status { return resp.Status },
	)
}

func (c *Coordinator) ReceiveAmount(ctx context.Context, req api.ReceiveAmountRequest) (api.ReceiveAmountResponse, error) {
	return collect(ctx, c, "receive", write,
		func(ctx context.Context, r api.Replica) (api.ReceiveAmountResponse, error) { return r.ReceiveAmount(ctx, req) },
		func(ep Endpoint, resp api.ReceiveAmountResponse) bool {
			return resp.Nonce == req.Nonce && resp.VerifySignature(ep.Key)
		},
		func(resp api.ReceiveAmountResponse) api.Status { return resp.Status },
	)
}

type versionKey struct {
	Status  api.Status
	Version uint64
}

func (c *Coordinator) CheckAccount(ctx context.Context, req api.CheckAccountRequest) (api.CheckAccountResponse, error) {
	return collect(ctx, c, "check", read,
		func(ctx context.Context, r api.Replica) (api.CheckAccountResponse, error) { return r.CheckAccount(ctx, req) },
		func(ep Endpoint, resp api.CheckAccountResponse) bool { return resp.VerifySignature(ep.Key) },
		func(resp api.CheckAccountResponse) versionKey { return versionKey{resp.Status, resp.Version} },
	)
}

func (c *Coordinator) Audit(ctx context.Context, req api.AuditRequest) (api.AuditResponse, error) {
	return collect(ctx, c, "audit", read,
		func(ctx context.Context, r api.Replica) (api.AuditResponse, error) { return r.Audit(ctx, req) },
		func(ep Endpoint, resp api.AuditResponse) bool { return resp.VerifySignature(ep.Key) },
		func(resp api.AuditResponse) versionKey { return versionKey{resp.Status, resp.Version} },
	)
}
