package net

import (
	"encoding/binary"
	"io"
	"time"

	"skoll/internal/common"
	"skoll/internal/events"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	ErrInvalidMessageType = errors.Wrap(common.ErrValidation, "invalid message type")
	ErrMessageTooShort    = errors.Wrap(common.ErrValidation, "message too short")
	ErrBatchTooLarge      = errors.Wrap(common.ErrValidation, "batch too large")
	ErrFrameTooLarge      = errors.New("frame too large")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	CreateOrder
	CancelOrder
	CleanupExpired
	FulfillLimit
	FulfillMarket
	FulfillWithPool
	FulfillWithFallback
	Deposit
	Withdraw
	Claim
	DistributeFee
	Subscribe
)

var messageNames = map[MessageType]string{
	Heartbeat:           "heartbeat",
	CreateOrder:         "create_order",
	CancelOrder:         "cancel_order",
	CleanupExpired:      "cleanup_expired",
	FulfillLimit:        "fulfill_limit",
	FulfillMarket:       "fulfill_market",
	FulfillWithPool:     "fulfill_with_pool",
	FulfillWithFallback: "fulfill_with_fallback",
	Deposit:             "deposit",
	Withdraw:            "withdraw",
	Claim:               "claim",
	DistributeFee:       "distribute_fee",
	Subscribe:           "subscribe",
}

func (t MessageType) String() string {
	if name, ok := messageNames[t]; ok {
		return name
	}
	return "unknown"
}

type ReportMessageType uint8

const (
	ResultReport ReportMessageType = iota
	EventReport
)

// Message format constants
const (
	FrameHeaderLen    = 4
	MaxFrameSize      = 64 * 1024
	BaseMessageHeader = 2 + 20
	amountLen         = 32
	matchLen          = 8 + 8 + amountLen
	// A batch never holds more entries than fit in one frame.
	MaxBatch = (MaxFrameSize - BaseMessageHeader - 2) / (matchLen + amountLen)
)

type Message interface {
	GetType() MessageType
	Caller() common.Address
	// Serialize encodes the message body, header included.
	Serialize() []byte
}

// Generic message type. Heartbeat and Subscribe carry nothing else.
type BaseMessage struct {
	TypeOf MessageType    // 2 bytes
	From   common.Address // 20 bytes, asserted by the sender
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func (m BaseMessage) Caller() common.Address {
	return m.From
}

func (m BaseMessage) Serialize() []byte {
	return m.header(0)
}

func (m BaseMessage) header(size int) []byte {
	buf := make([]byte, 0, BaseMessageHeader+size)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.TypeOf))
	return append(buf, m.From[:]...)
}

type CreateOrderMessage struct {
	BaseMessage
	Side   common.Side    // 1 byte
	Kind   common.Kind    // 1 byte
	Asset  common.Address // 20 bytes
	Amount *uint256.Int   // 32 bytes
	Price  *uint256.Int   // 32 bytes
	TTL    time.Duration  // 8 bytes, nanoseconds
	Value  *uint256.Int   // 32 bytes
}

func (m CreateOrderMessage) Serialize() []byte {
	buf := m.header(1 + 1 + 20 + 3*amountLen + 8)
	buf = append(buf, byte(m.Side), byte(m.Kind))
	buf = append(buf, m.Asset[:]...)
	buf = appendAmount(buf, m.Amount)
	buf = appendAmount(buf, m.Price)
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.TTL))
	return appendAmount(buf, m.Value)
}

// OrderMessage names one order. It carries CancelOrder and CleanupExpired.
type OrderMessage struct {
	BaseMessage
	OrderID uint64 // 8 bytes
}

func (m OrderMessage) Serialize() []byte {
	return binary.BigEndian.AppendUint64(m.header(8), m.OrderID)
}

// FulfillMessage carries FulfillLimit and FulfillMarket. Prices is only
// present for market batches and then has one entry per match.
type FulfillMessage struct {
	BaseMessage
	Matches []common.Match // 2 byte count, 48 bytes each
	Prices  []*uint256.Int // 32 bytes each, market only
}

func (m FulfillMessage) Serialize() []byte {
	buf := m.header(2 + len(m.Matches)*(matchLen+amountLen))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Matches)))
	for i, match := range m.Matches {
		buf = binary.BigEndian.AppendUint64(buf, match.BuyID)
		buf = binary.BigEndian.AppendUint64(buf, match.SellID)
		buf = appendAmount(buf, match.Fill)
		if m.TypeOf == FulfillMarket {
			var price *uint256.Int
			if i < len(m.Prices) {
				price = m.Prices[i]
			}
			buf = appendAmount(buf, price)
		}
	}
	return buf
}

type FulfillWithPoolMessage struct {
	BaseMessage
	OrderIDs []uint64       // 2 byte count, 8 bytes each
	Fills    []*uint256.Int // 32 bytes each
}

func (m FulfillWithPoolMessage) Serialize() []byte {
	buf := m.header(2 + len(m.OrderIDs)*(8+amountLen))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.OrderIDs)))
	for i, id := range m.OrderIDs {
		buf = binary.BigEndian.AppendUint64(buf, id)
		var fill *uint256.Int
		if i < len(m.Fills) {
			fill = m.Fills[i]
		}
		buf = appendAmount(buf, fill)
	}
	return buf
}

type FulfillWithFallbackMessage struct {
	BaseMessage
	OrderID uint64       // 8 bytes
	Fill    *uint256.Int // 32 bytes
	MinOut  *uint256.Int // 32 bytes
}

func (m FulfillWithFallbackMessage) Serialize() []byte {
	buf := binary.BigEndian.AppendUint64(m.header(8+2*amountLen), m.OrderID)
	buf = appendAmount(buf, m.Fill)
	return appendAmount(buf, m.MinOut)
}

// PoolMessage addresses one compartment epoch. It carries Deposit, Claim
// and DistributeFee; Epoch is ignored by Deposit and Amount by Claim.
type PoolMessage struct {
	BaseMessage
	Asset       common.Address     // 20 bytes
	Compartment common.Compartment // 1 byte
	Epoch       uint64             // 8 bytes
	Amount      *uint256.Int       // 32 bytes
}

func (m PoolMessage) Serialize() []byte {
	buf := append(m.header(20+1+8+amountLen), m.Asset[:]...)
	buf = append(buf, byte(m.Compartment))
	buf = binary.BigEndian.AppendUint64(buf, m.Epoch)
	return appendAmount(buf, m.Amount)
}

type WithdrawMessage struct {
	BaseMessage
	Asset       common.Address     // 20 bytes
	Compartment common.Compartment // 1 byte
	Epoch       uint64             // 8 bytes
	Bps         uint16             // 2 bytes
	MinOut      *uint256.Int       // 32 bytes
}

func (m WithdrawMessage) Serialize() []byte {
	buf := append(m.header(20+1+8+2+amountLen), m.Asset[:]...)
	buf = append(buf, byte(m.Compartment))
	buf = binary.BigEndian.AppendUint64(buf, m.Epoch)
	buf = binary.BigEndian.AppendUint16(buf, m.Bps)
	return appendAmount(buf, m.MinOut)
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeader {
		return BaseMessage{}, errors.Wrap(ErrMessageTooShort, "header")
	}

	base := BaseMessage{
		TypeOf: MessageType(binary.BigEndian.Uint16(msg[0:2])),
		From:   common.BytesToAddress(msg[2:22]),
	}
	r := &reader{buf: msg[BaseMessageHeader:]}

	var m Message
	switch base.TypeOf {
	case Heartbeat, Subscribe:
		m = base
	case CreateOrder:
		m = CreateOrderMessage{
			BaseMessage: base,
			Side:        common.Side(r.u8()),
			Kind:        common.Kind(r.u8()),
			Asset:       r.address(),
			Amount:      r.amount(),
			Price:       r.amount(),
			TTL:         time.Duration(r.u64()),
			Value:       r.amount(),
		}
	case CancelOrder, CleanupExpired:
		m = OrderMessage{BaseMessage: base, OrderID: r.u64()}
	case FulfillLimit, FulfillMarket:
		m = parseFulfill(base, r)
	case FulfillWithPool:
		fm := FulfillWithPoolMessage{BaseMessage: base}
		n := r.count()
		for i := 0; i < n && r.err == nil; i++ {
			fm.OrderIDs = append(fm.OrderIDs, r.u64())
			fm.Fills = append(fm.Fills, r.amount())
		}
		m = fm
	case FulfillWithFallback:
		m = FulfillWithFallbackMessage{
			BaseMessage: base,
			OrderID:     r.u64(),
			Fill:        r.amount(),
			MinOut:      r.amount(),
		}
	case Deposit, Claim, DistributeFee:
		m = PoolMessage{
			BaseMessage: base,
			Asset:       r.address(),
			Compartment: common.Compartment(r.u8()),
			Epoch:       r.u64(),
			Amount:      r.amount(),
		}
	case Withdraw:
		m = WithdrawMessage{
			BaseMessage: base,
			Asset:       r.address(),
			Compartment: common.Compartment(r.u8()),
			Epoch:       r.u64(),
			Bps:         r.u16(),
			MinOut:      r.amount(),
		}
	default:
		return base, errors.Wrapf(ErrInvalidMessageType, "%d", base.TypeOf)
	}
	if r.err != nil {
		return base, errors.Wrap(r.err, base.TypeOf.String())
	}
	return m, nil
}

func parseFulfill(base BaseMessage, r *reader) FulfillMessage {
	m := FulfillMessage{BaseMessage: base}
	n := r.count()
	for i := 0; i < n && r.err == nil; i++ {
		m.Matches = append(m.Matches, common.Match{
			BuyID:  r.u64(),
			SellID: r.u64(),
			Fill:   r.amount(),
		})
		if base.TypeOf == FulfillMarket {
			m.Prices = append(m.Prices, r.amount())
		}
	}
	return m
}

// Report is everything the server sends: the result of one request, or one
// committed event to a subscriber.
type Report struct {
	MessageType ReportMessageType // 1 byte
	Request     MessageType       // 2 bytes
	Code        common.Code       // 1 byte
	Err         string            // 2 byte length, n bytes
	Values      []*uint256.Int    // 2 byte count, 32 bytes each
	Event       events.Event      // events.EncodedLen bytes, event reports only
}

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() []byte {
	if r.MessageType == EventReport {
		return append([]byte{byte(EventReport)}, events.Encode(r.Event)...)
	}

	errStr := r.Err
	if len(errStr) > 1024 {
		errStr = errStr[:1024]
	}
	buf := make([]byte, 0, 1+2+1+2+len(errStr)+2+len(r.Values)*amountLen)
	buf = append(buf, byte(ResultReport))
	buf = binary.BigEndian.AppendUint16(buf, uint16(r.Request))
	buf = append(buf, byte(r.Code))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(errStr)))
	buf = append(buf, errStr...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Values)))
	for _, v := range r.Values {
		buf = appendAmount(buf, v)
	}
	return buf
}

func parseReport(msg []byte) (Report, error) {
	if len(msg) < 1 {
		return Report{}, errors.Wrap(ErrMessageTooShort, "report")
	}

	rep := Report{MessageType: ReportMessageType(msg[0])}
	switch rep.MessageType {
	case EventReport:
		ev, err := events.Decode(msg[1:])
		if err != nil {
			return Report{}, err
		}
		rep.Event = ev
		return rep, nil
	case ResultReport:
	default:
		return Report{}, errors.Wrapf(ErrInvalidMessageType, "report %d", msg[0])
	}

	r := &reader{buf: msg[1:]}
	rep.Request = MessageType(r.u16())
	rep.Code = common.Code(r.u8())
	rep.Err = string(r.bytes(int(r.u16())))
	n := r.count()
	for i := 0; i < n && r.err == nil; i++ {
		rep.Values = append(rep.Values, r.amount())
	}
	if r.err != nil {
		return Report{}, errors.Wrap(r.err, "report")
	}
	return rep, nil
}

func newResult(request MessageType, values []*uint256.Int, err error) Report {
	rep := Report{
		MessageType: ResultReport,
		Request:     request,
		Code:        common.CodeOf(err),
		Values:      values,
	}
	if err != nil {
		rep.Err = err.Error()
		rep.Values = nil
	}
	return rep
}

// --- Framing ---

// WriteFrame writes a length-prefixed frame.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, FrameHeaderLen, FrameHeaderLen+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	_, err := w.Write(append(buf, body...))
	return err
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	return readBody(r, header[:])
}

func readBody(r io.Reader, header []byte) ([]byte, error) {
	size := binary.BigEndian.Uint32(header)
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// --- Field codec ---

func appendAmount(buf []byte, amount *uint256.Int) []byte {
	if amount == nil {
		return append(buf, make([]byte, amountLen)...)
	}
	b := amount.Bytes32()
	return append(buf, b[:]...)
}

// reader consumes big-endian fields. The first short read sticks, later
// reads return zero values.
type reader struct {
	buf []byte
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = ErrMessageTooShort
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u8() uint8 {
	if b := r.bytes(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.bytes(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.bytes(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) address() common.Address {
	return common.BytesToAddress(r.bytes(20))
}

func (r *reader) amount() *uint256.Int {
	if b := r.bytes(amountLen); b != nil {
		return new(uint256.Int).SetBytes32(b)
	}
	return new(uint256.Int)
}

func (r *reader) count() int {
	n := int(r.u16())
	if n > MaxBatch && r.err == nil {
		r.err = ErrBatchTooLarge
	}
	return n
}
