package engine

// EventKind tags the variant carried by an Event.
type EventKind uint8

const (
	AckEvent EventKind = iota
	CancelAckEvent
	TradeEvent
	TopOfBookEvent
)

// Event is a single outbound message produced by the engine. Events are
// immutable once constructed; broadcast hands the same value to every
// session, and each session encodes it into its own outbound queue.
type Event struct {
	Kind   EventKind
	Symbol string

	// Ack / CancelAck
	ClientID uint64
	OrderID  uint64

	// Trade
	BuyClientID  uint64
	BuyOrderID   uint64
	SellClientID uint64
	SellOrderID  uint64
	Price        uint64
	Qty          uint64

	// TopOfBook
	HasBid   bool
	BidPrice uint64
	BidQty   uint64
	HasAsk   bool
	AskPrice uint64
	AskQty   uint64
}
