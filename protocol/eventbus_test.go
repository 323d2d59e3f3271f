package protocol

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	bverrors "github.com/mezonai/bitvm20/errors"
	"github.com/mezonai/bitvm20/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDelivery(t *testing.T) {
	bus := NewEventBus()
	one := bus.Subscribe("tx-1")
	all := bus.Subscribe(AllTransactions)
	assert.Equal(t, 1, bus.SubscriberCount("tx-1"))

	bus.Publish(NewTransactionRejected("tx-1", errors.New("boom")))
	bus.Publish(NewTransactionRejected("tx-2", errors.New("boom")))

	require.Len(t, one, 1)
	require.Len(t, all, 2)
	ev := <-one
	assert.Equal(t, "TransactionRejected", ev.Type())
	assert.Equal(t, "tx-1", ev.TxHash())
	assert.False(t, ev.Timestamp().IsZero())

	bus.Unsubscribe("tx-1", one)
	_, open := <-one
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount("tx-1"))

	// a full subscriber does not block the publisher
	for i := 0; i < 20; i++ {
		bus.Publish(NewTransactionRejected("tx-3", nil))
	}
	assert.Len(t, all, cap(all))
}

func TestOperatorPublishesEvents(t *testing.T) {
	p := newParty(2)
	op, verifiers, _ := newNetwork(t, p, 1)
	bus := NewEventBus()
	op.SetEventBus(bus)
	events := bus.Subscribe(AllTransactions)

	_, err := op.PostTransaction(types.NewUserTransaction(0, 4, uint256.NewInt(1)))
	require.Error(t, err)
	rejected := (<-events).(*TransactionRejected)
	assert.Equal(t, "", rejected.TxHash())
	assert.True(t, bverrors.HasCode(rejected.Err(), bverrors.ErrCodeAccountNotFound))

	packet, err := op.PostTransaction(p.transfer(t, op.Tree(), 0, 1, 10))
	require.NoError(t, err)
	held := (<-events).(*TransactionHeld)
	assert.Equal(t, packet.Tx.Hash(), held.TxHash())

	sig, err := verifiers[0].ReceiveBroadcast(packet)
	require.NoError(t, err)
	require.True(t, op.ReceiveVerifierSignatures([]*TakeSignature{sig}))
	committed := (<-events).(*TransactionCommitted)
	assert.Equal(t, held.TapRoot(), committed.Transaction().TapRoot)
	assert.Same(t, packet, committed.Transaction().Packet)

	_, err = op.PostTransaction(p.transfer(t, op.Tree(), 0, 1, 10))
	require.NoError(t, err)
	<-events
	op.AbortTransaction()
	aborted := (<-events).(*TransactionRejected)
	assert.ErrorIs(t, aborted.Err(), ErrAborted)
}
