package events

import (
	"encoding/binary"
	"errors"
	"time"

	"skoll/internal/common"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

var ErrEventTooShort = errors.New("event too short")

// EncodedLen is the fixed size of an encoded event.
const EncodedLen = 2 + 8 + 16 + 8 + 8 + 8 + 20 + 20 + 1 + 1 + 1 + 8 + 4*32

// Encode packs an event into its fixed-size big-endian form. Nil amounts
// are written as zero.
func Encode(ev Event) []byte {
	buf := make([]byte, EncodedLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(ev.Kind))
	binary.BigEndian.PutUint64(buf[2:10], ev.Seq)
	copy(buf[10:26], ev.ID[:])
	binary.BigEndian.PutUint64(buf[26:34], uint64(ev.Timestamp.UnixNano()))
	binary.BigEndian.PutUint64(buf[34:42], ev.OrderID)
	binary.BigEndian.PutUint64(buf[42:50], ev.CounterID)
	copy(buf[50:70], ev.Owner[:])
	copy(buf[70:90], ev.Asset[:])
	buf[90] = byte(ev.Side)
	buf[91] = byte(ev.OrderKind)
	buf[92] = byte(ev.Compartment)
	binary.BigEndian.PutUint64(buf[93:101], ev.Epoch)

	offset := 101
	for _, amount := range []*uint256.Int{ev.Amount, ev.Price, ev.Value, ev.Fee} {
		putAmount(buf[offset:offset+32], amount)
		offset += 32
	}
	return buf
}

// Decode is the inverse of Encode. Decoded amounts are never nil.
func Decode(buf []byte) (Event, error) {
	if len(buf) < EncodedLen {
		return Event{}, ErrEventTooShort
	}

	ev := Event{
		Kind:        Kind(binary.BigEndian.Uint16(buf[0:2])),
		Seq:         binary.BigEndian.Uint64(buf[2:10]),
		Timestamp:   time.Unix(0, int64(binary.BigEndian.Uint64(buf[26:34]))).UTC(),
		OrderID:     binary.BigEndian.Uint64(buf[34:42]),
		CounterID:   binary.BigEndian.Uint64(buf[42:50]),
		Owner:       common.BytesToAddress(buf[50:70]),
		Asset:       common.BytesToAddress(buf[70:90]),
		Side:        common.Side(buf[90]),
		OrderKind:   common.Kind(buf[91]),
		Compartment: common.Compartment(buf[92]),
		Epoch:       binary.BigEndian.Uint64(buf[93:101]),
	}
	id, err := uuid.FromBytes(buf[10:26])
	if err != nil {
		return Event{}, err
	}
	ev.ID = id

	ev.Amount = new(uint256.Int).SetBytes32(buf[101:133])
	ev.Price = new(uint256.Int).SetBytes32(buf[133:165])
	ev.Value = new(uint256.Int).SetBytes32(buf[165:197])
	ev.Fee = new(uint256.Int).SetBytes32(buf[197:229])
	return ev, nil
}

func putAmount(dst []byte, amount *uint256.Int) {
	if amount == nil {
		return
	}
	b := amount.Bytes32()
	copy(dst, b[:])
}
