package consensus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luca-patrignani/byzantine-bank/api"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

// stubReplica answers every call with a fixed status. signer is the key used
// to sign responses; a stub whose signer differs from its advertised key
// forges.
type stubReplica struct {
	signer  signature.KeyPair
	status  api.Status
	version uint64
	fail    bool
	block   bool
	// connect delays every call; a cancelled call gives up while waiting.
	connect time.Duration
	served  atomic.Bool
}

var errUnreachable = errors.New("unreachable")

func (s *stubReplica) wait(ctx context.Context) error {
	if s.fail {
		return errUnreachable
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.connect > 0 {
		select {
		case <-time.After(s.connect):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.served.Store(true)
	return nil
}

func (s *stubReplica) OpenAccount(ctx context.Context, req api.OpenAccountRequest) (api.OpenAccountResponse, error) {
	if err := s.wait(ctx); err != nil {
		return api.OpenAccountResponse{}, err
	}
	resp := api.OpenAccountResponse{Status: s.status, Challenge: req.Challenge}
	resp.Sign(s.signer)
	return resp, nil
}

func (s *stubReplica) NonceNegotiation(ctx context.Context, req api.NonceRequest) (api.NonceResponse, error) {
	if err := s.wait(ctx); err != nil {
		return api.NonceResponse{}, err
	}
	var n signature.Nonce
	n[0] = byte(s.version)
	resp := api.NonceResponse{Status: s.status, Challenge: req.Challenge, Nonce: n}
	resp.Sign(s.signer)
	return resp, nil
}

func (s *stubReplica) SendAmount(ctx context.Context, req api.SendAmountRequest) (api.SendAmountResponse, error) {
	if err := s.wait(ctx); err != nil {
		return api.SendAmountResponse{}, err
	}
	resp := api.SendAmountResponse{Status: s.status, Nonce: req.Nonce}
	resp.Sign(s.signer)
	return resp, nil
}

func (s *stubReplica) ReceiveAmount(ctx context.Context, req api.ReceiveAmountRequest) (api.ReceiveAmountResponse, error) {
	if err := s.wait(ctx); err != nil {
		return api.ReceiveAmountResponse{}, err
	}
	resp := api.ReceiveAmountResponse{Status: s.status, Nonce: req.Nonce}
	resp.Sign(s.signer)
	return resp, nil
}

func (s *stubReplica) CheckAccount(ctx context.Context, req api.CheckAccountRequest) (api.CheckAccountResponse, error) {
	if err := s.wait(ctx); err != nil {
		return api.CheckAccountResponse{}, err
	}
	resp := api.CheckAccountResponse{Status: s.status, Version: s.version, Balance: "1000"}
	resp.Sign(s.signer)
	return resp, nil
}

func (s *stubReplica) Audit(ctx context.Context, req api.AuditRequest) (api.AuditResponse, error) {
	if err := s.wait(ctx); err != nil {
		return api.AuditResponse{}, err
	}
	resp := api.AuditResponse{Status: s.status, Version: s.version}
	resp.Sign(s.signer)
	return resp, nil
}

func endpoints(stubs ...*stubReplica) []Endpoint {
	eps := make([]Endpoint, len(stubs))
	for i, s := range stubs {
		eps[i] = Endpoint{Name: string(rune('a' + i)), Replica: s, Key: s.signer.Public}
	}
	return eps
}

func honest(status api.Status) *stubReplica {
	return &stubReplica{signer: signature.GenerateKey(), status: status, version: 1}
}

func sendRequest() api.SendAmountRequest {
	return api.SendAmountRequest{
		Transaction: api.Transaction{Amount: "1"},
		Nonce:       signature.NewNonce(),
	}
}

func TestCoordinatorMajorityWins(t *testing.T) {
	c := NewCoordinator(endpoints(
		honest(api.StatusSuccess),
		honest(api.StatusSuccess),
		honest(api.StatusNotEnoughBalance),
	), logging.TestingLog(t))

	req := sendRequest()
	resp, err := c.SendAmount(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, api.StatusSuccess, resp.Status)
	assert.Equal(t, req.Nonce, resp.Nonce)
}

func TestCoordinatorDropsForgedReplies(t *testing.T) {
	forger := honest(api.StatusSuccess)
	eps := endpoints(
		honest(api.StatusWrongNonce),
		honest(api.StatusWrongNonce),
		forger,
		honest(api.StatusSuccess),
	)
	// the forger signs with a key the coordinator does not trust
	forger.signer = signature.GenerateKey()

	c := NewCoordinator(eps, logging.TestingLog(t))
	_, err := c.SendAmount(context.Background(), sendRequest())
	assert.ErrorIs(t, err, ErrNoQuorum, "2 of 4 is not a quorum once the forged success is dropped")
}

func TestCoordinatorSplitVote(t *testing.T) {
	c := NewCoordinator(endpoints(
		honest(api.StatusSuccess),
		honest(api.StatusSuccess),
		honest(api.StatusInvalidSignature),
		honest(api.StatusInvalidSignature),
	), logging.TestingLog(t))

	_, err := c.OpenAccount(context.Background(), api.OpenAccountRequest{Challenge: signature.NewNonce()})
	assert.ErrorIs(t, err, ErrNoQuorum)
}

func TestCoordinatorToleratesUnreachableReplica(t *testing.T) {
	down := honest(api.StatusSuccess)
	down.fail = true
	c := NewCoordinator(endpoints(
		honest(api.StatusSuccess),
		down,
		honest(api.StatusSuccess),
	), logging.TestingLog(t))

	resp, err := c.ReceiveAmount(context.Background(), api.ReceiveAmountRequest{Nonce: signature.NewNonce()})
	require.NoError(t, err)
	assert.Equal(t, api.StatusSuccess, resp.Status)
}

func TestCoordinatorDoesNotWaitForStragglers(t *testing.T) {
	slow := honest(api.StatusSuccess)
	slow.block = true
	c := NewCoordinator(endpoints(
		honest(api.StatusSuccess),
		honest(api.StatusSuccess),
		slow,
	), logging.TestingLog(t))

	done := make(chan error, 1)
	go func() {
		_, err := c.CheckAccount(context.Background(), api.CheckAccountRequest{})
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator waited for a replica that never answers")
	}
}

func TestCoordinatorReadsKeyedByVersion(t *testing.T) {
	stale := honest(api.StatusSuccess)
	stale.version = 0
	c := NewCoordinator(endpoints(
		honest(api.StatusSuccess),
		stale,
		honest(api.StatusSuccess),
	), logging.TestingLog(t))

	resp, err := c.Audit(context.Background(), api.AuditRequest{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resp.Version)
}

func TestCoordinatorNonceAgreement(t *testing.T) {
	odd := honest(api.StatusSuccess)
	odd.version = 9
	c := NewCoordinator(endpoints(
		honest(api.StatusSuccess),
		odd,
		honest(api.StatusSuccess),
	), logging.TestingLog(t))

	req := api.NonceRequest{Challenge: signature.NewNonce()}
	resp, err := c.NonceNegotiation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, byte(1), resp.Nonce[0])
	assert.Equal(t, req.Challenge, resp.Challenge)
}

func TestCoordinatorDeliversWritesToStragglers(t *testing.T) {
	slow := honest(api.StatusSuccess)
	slow.connect = 100 * time.Millisecond
	c := NewCoordinator(endpoints(
		honest(api.StatusSuccess),
		honest(api.StatusSuccess),
		slow,
	), logging.TestingLog(t))

	resp, err := c.SendAmount(context.Background(), sendRequest())
	require.NoError(t, err)
	assert.Equal(t, api.StatusSuccess, resp.Status)

	c.Wait()
	assert.True(t, slow.served.Load(), "the slow replica never saw the write")
}

func TestCoordinatorCancelsReadStragglers(t *testing.T) {
	slow := honest(api.StatusSuccess)
	slow.connect = 5 * time.Second
	c := NewCoordinator(endpoints(
		honest(api.StatusSuccess),
		honest(api.StatusSuccess),
		slow,
	), logging.TestingLog(t))

	_, err := c.CheckAccount(context.Background(), api.CheckAccountRequest{})
	require.NoError(t, err)

	start := time.Now()
	c.Wait()
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.False(t, slow.served.Load())
}

func TestCoordinatorWriteOutlivesCaller(t *testing.T) {
	stubs := []*stubReplica{honest(api.StatusSuccess), honest(api.StatusSuccess), honest(api.StatusSuccess)}
	for _, s := range stubs {
		s.connect = 200 * time.Millisecond
	}
	c := NewCoordinator(endpoints(stubs...), logging.TestingLog(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ReceiveAmount(ctx, api.ReceiveAmountRequest{Nonce: signature.NewNonce()})
	assert.ErrorIs(t, err, context.Canceled)

	c.Wait()
	for i, s := range stubs {
		assert.True(t, s.served.Load(), "replica %d", i)
	}
}

func TestCoordinatorDeliveryTimeout(t *testing.T) {
	stuck := honest(api.StatusSuccess)
	stuck.block = true
	c := NewCoordinator(endpoints(
		honest(api.StatusSuccess),
		honest(api.StatusSuccess),
		stuck,
	), logging.TestingLog(t), WithDeliveryTimeout(50*time.Millisecond))

	_, err := c.OpenAccount(context.Background(), api.OpenAccountRequest{Challenge: signature.NewNonce()})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("write delivery was not bounded by the delivery timeout")
	}
	assert.False(t, stuck.served.Load())
}
