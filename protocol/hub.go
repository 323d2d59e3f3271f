package protocol

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	bverrors "github.com/mezonai/bitvm20/errors"
	"github.com/mezonai/bitvm20/exception"
	"github.com/mezonai/bitvm20/logx"
	"github.com/mezonai/bitvm20/monitoring"
	"github.com/mezonai/bitvm20/transaction"
	"github.com/mezonai/bitvm20/types"
)

// RevertTimeout bounds the rollback that follows a failed sign-off. It is
// measured from the failure, not from the caller's deadline.
const RevertTimeout = 30 * time.Second

var ErrHubClosed = errors.New("protocol: hub closed")

// Response is one verifier's answer to a broadcast.
type Response struct {
	VerifierID int
	Signature  *TakeSignature
	Err        error
}

type request struct {
	ctx    context.Context
	packet *BroadcastPacket
	revert *transaction.Transaction
	reply  chan<- Response
}

type worker struct {
	name      string
	verifier  *Verifier
	inbox     chan request
	current   *request
	violation *ProtocolViolation
	failed    error
}

// Hub delivers broadcast packets to verifiers. Each verifier runs in its own
// goroutine and owns its ledger; nothing is shared between them.
type Hub struct {
	mu      sync.RWMutex
	closed  bool
	workers []*worker
}

func NewHub(verifiers ...*Verifier) *Hub {
	h := &Hub{workers: make([]*worker, len(verifiers))}
	for i, v := range verifiers {
		w := &worker{
			name:     fmt.Sprintf("verifier-%d", v.ID()),
			verifier: v,
			inbox:    make(chan request, 1),
		}
		h.workers[i] = w
		w.start()
	}
	return h
}

func (w *worker) start() {
	exception.SafeGo(w.name, w.run, w.crashed)
}

// reply channels are buffered for every target, so sends never block.
func (w *worker) run() {
	for req := range w.inbox {
		w.current = &req
		resp := w.handle(req)
		w.current = nil
		req.reply <- resp
	}
}

// crashed answers the request that panicked, marks the verifier failed and
// restarts the loop so queued requests still get a reply.
func (w *worker) crashed(r interface{}) {
	w.failed = bverrors.NewError(bverrors.ErrCodeInternal, fmt.Sprintf("verifier %d crashed: %v", w.verifier.ID(), r))
	monitoring.RecordVerifierRejection(string(bverrors.ErrCodeInternal))
	if req := w.current; req != nil {
		w.current = nil
		req.reply <- Response{VerifierID: w.verifier.ID(), Err: w.failed}
	}
	w.start()
}

// handle turns a protocol violation into a response and halts the verifier
// for every later request. Any other panic escapes to crashed.
func (w *worker) handle(req request) (resp Response) {
	resp.VerifierID = w.verifier.ID()
	switch {
	case w.failed != nil:
		resp.Err = w.failed
		return resp
	case w.violation != nil:
		resp.Err = w.violation
		return resp
	}
	defer func() {
		if r := recover(); r != nil {
			v, ok := r.(*ProtocolViolation)
			if !ok {
				panic(r)
			}
			w.violation = v
			monitoring.RecordVerifierRejection(string(bverrors.ErrCodeLedgerDesync))
			logx.Error("HUB", v.Error())
			resp.Err = v
		}
	}()
	if req.revert != nil {
		if !w.verifier.Applied(req.revert) {
			return resp
		}
		if !w.verifier.Revert(req.revert) {
			resp.Err = fmt.Errorf("verifier %d could not revert %s", w.verifier.ID(), req.revert.Hash())
		}
		return resp
	}
	if err := req.ctx.Err(); err != nil {
		resp.Err = err
		return resp
	}
	resp.Signature, resp.Err = w.verifier.ReceiveBroadcast(req.packet)
	return resp
}

// Broadcast sends packet to every verifier and waits for all responses,
// ordered by verifier id. On context cancellation it returns what arrived;
// verifiers still working on the packet may apply it afterwards.
func (h *Hub) Broadcast(ctx context.Context, packet *BroadcastPacket) ([]Response, error) {
	return h.dispatch(ctx, func(reply chan<- Response) request {
		return request{ctx: ctx, packet: packet, reply: reply}
	})
}

// Revert asks every verifier to undo tx. Verifiers whose last applied
// transaction is not tx answer without changing anything. Requests are queued
// behind any broadcast still in flight.
func (h *Hub) Revert(ctx context.Context, tx *transaction.Transaction) ([]Response, error) {
	return h.dispatch(ctx, func(reply chan<- Response) request {
		return request{ctx: ctx, revert: tx, reply: reply}
	})
}

func (h *Hub) dispatch(ctx context.Context, build func(chan<- Response) request) ([]Response, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	reply := make(chan Response, len(h.workers))
	sent := 0
	for _, w := range h.workers {
		select {
		case w.inbox <- build(reply):
			sent++
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	responses := make([]Response, 0, sent)
	for len(responses) < sent {
		monitoring.SetPendingVerifiers(sent - len(responses))
		select {
		case resp := <-reply:
			responses = append(responses, resp)
		case <-ctx.Done():
			monitoring.SetPendingVerifiers(0)
			return sortResponses(responses), ctx.Err()
		}
	}
	monitoring.SetPendingVerifiers(0)
	return sortResponses(responses), nil
}

func sortResponses(responses []Response) []Response {
	sort.Slice(responses, func(i, j int) bool {
		return responses[i].VerifierID < responses[j].VerifierID
	})
	return responses
}

// Close stops the verifier goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, w := range h.workers {
		close(w.inbox)
	}
}

// RunTransaction posts utx to the operator, collects verifier signatures
// through the hub and commits. On any failure, including cancellation of
// ctx, the operator aborts and every verifier that applied the transaction
// reverts it before RunTransaction returns.
func RunTransaction(ctx context.Context, op *Operator, hub *Hub, utx *types.UserTransaction) (*ChallengeableTransaction, error) {
	packet, err := op.PostTransaction(utx)
	if err != nil {
		return nil, err
	}
	responses, err := hub.Broadcast(ctx, packet)
	if err != nil {
		rollback(ctx, op, hub, packet.Tx)
		return nil, err
	}

	var (
		sigs     []*TakeSignature
		firstErr error
	)
	for _, resp := range responses {
		if resp.Err != nil {
			if firstErr == nil {
				firstErr = resp.Err
			}
			continue
		}
		sigs = append(sigs, resp.Signature)
	}
	if firstErr == nil && !op.ReceiveVerifierSignatures(sigs) {
		firstErr = bverrors.NewError(bverrors.ErrCodeInvalidBundle, "operator refused verifier signatures")
	}
	if firstErr != nil {
		rollback(ctx, op, hub, packet.Tx)
		return nil, firstErr
	}
	history := op.History()
	return history[len(history)-1], nil
}

// rollback runs detached from ctx, which may already be done.
func rollback(ctx context.Context, op *Operator, hub *Hub, tx *transaction.Transaction) {
	op.AbortTransaction()
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RevertTimeout)
	defer cancel()
	responses, err := hub.Revert(rctx, tx)
	if err != nil {
		logx.Error("HUB", fmt.Sprintf("revert %s: %v", tx.Hash(), err))
		return
	}
	for _, resp := range responses {
		if resp.Err != nil {
			logx.Error("HUB", fmt.Sprintf("verifier %d revert %s: %v", resp.VerifierID, tx.Hash(), resp.Err))
		}
	}
}
