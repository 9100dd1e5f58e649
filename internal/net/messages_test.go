package net

import (
	"bytes"
	"testing"
	"time"

	"skoll/internal/common"
	"skoll/internal/events"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	caller = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
)

func base(typeOf MessageType) BaseMessage {
	return BaseMessage{TypeOf: typeOf, From: caller}
}

func TestMessageRoundTrip(t *testing.T) {
	n := uint256.NewInt
	msgs := []Message{
		base(Heartbeat),
		base(Subscribe),
		CreateOrderMessage{
			BaseMessage: base(CreateOrder), Side: common.Sell, Kind: common.Market, Asset: token,
			Amount: n(100), Price: n(3), TTL: 90 * time.Second, Value: n(0),
		},
		OrderMessage{BaseMessage: base(CancelOrder), OrderID: 7},
		OrderMessage{BaseMessage: base(CleanupExpired), OrderID: 8},
		FulfillMessage{
			BaseMessage: base(FulfillLimit),
			Matches:     []common.Match{{BuyID: 1, SellID: 2, Fill: n(5)}, {BuyID: 3, SellID: 4, Fill: n(6)}},
		},
		FulfillMessage{
			BaseMessage: base(FulfillMarket),
			Matches:     []common.Match{{BuyID: 1, SellID: 2, Fill: n(5)}},
			Prices:      []*uint256.Int{n(11)},
		},
		FulfillWithPoolMessage{BaseMessage: base(FulfillWithPool), OrderIDs: []uint64{9, 10}, Fills: []*uint256.Int{n(1), n(2)}},
		FulfillWithFallbackMessage{BaseMessage: base(FulfillWithFallback), OrderID: 4, Fill: n(12), MinOut: n(13)},
		PoolMessage{BaseMessage: base(Deposit), Asset: token, Compartment: common.AssetCompartment, Amount: n(50)},
		PoolMessage{BaseMessage: base(Claim), Asset: token, Compartment: common.CurrencyCompartment, Epoch: 2, Amount: n(0)},
		PoolMessage{BaseMessage: base(DistributeFee), Asset: token, Epoch: 1, Amount: n(9)},
		WithdrawMessage{BaseMessage: base(Withdraw), Asset: token, Compartment: common.AssetCompartment, Epoch: 3, Bps: 5000, MinOut: n(1)},
	}

	for _, msg := range msgs {
		t.Run(msg.GetType().String(), func(t *testing.T) {
			got, err := parseMessage(msg.Serialize())
			require.NoError(t, err)
			assert.Equal(t, msg, got)
			assert.Equal(t, caller, got.Caller())
		})
	}
}

func TestParseMessage_Errors(t *testing.T) {
	_, err := parseMessage([]byte{0, 1})
	assert.ErrorIs(t, err, ErrMessageTooShort)

	_, err = parseMessage(base(MessageType(999)).Serialize())
	assert.ErrorIs(t, err, ErrInvalidMessageType)
	assert.Equal(t, common.CodeValidation, common.CodeOf(err))

	full := OrderMessage{BaseMessage: base(CancelOrder), OrderID: 7}.Serialize()
	_, err = parseMessage(full[:len(full)-1])
	assert.ErrorIs(t, err, ErrMessageTooShort)

	huge := base(FulfillLimit).header(2)
	huge = append(huge, 0xff, 0xff)
	_, err = parseMessage(huge)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestReportRoundTrip(t *testing.T) {
	result := newResult(CreateOrder, []*uint256.Int{uint256.NewInt(42)}, nil)
	got, err := parseReport(result.Serialize())
	require.NoError(t, err)
	assert.Equal(t, result, got)

	failed := newResult(CancelOrder, []*uint256.Int{uint256.NewInt(1)}, common.ErrNotOwner)
	got, err = parseReport(failed.Serialize())
	require.NoError(t, err)
	assert.Equal(t, common.CodeAuthorization, got.Code)
	assert.Equal(t, common.ErrNotOwner.Error(), got.Err)
	assert.Empty(t, got.Values)

	ev := events.Event{
		Kind: events.OrderCreated, Seq: 3, ID: uuid.New(),
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
		OrderID:   1, Owner: caller, Asset: token,
		Amount: uint256.NewInt(1), Price: uint256.NewInt(2), Value: uint256.NewInt(3), Fee: uint256.NewInt(4),
	}
	report := Report{MessageType: EventReport, Event: ev}
	got, err = parseReport(report.Serialize())
	require.NoError(t, err)
	assert.Equal(t, EventReport, got.MessageType)
	assert.Equal(t, ev, got.Event)
}

func TestFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("abc")))
	require.NoError(t, WriteFrame(&buf, nil))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	got, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, WriteFrame(&buf, make([]byte, MaxFrameSize+1)), ErrFrameTooLarge)
	_, err = ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
