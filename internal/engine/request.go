package engine

import "matchengine/internal/book"

// RequestKind tags the variant carried by a Request.
type RequestKind uint8

const (
	NewOrder RequestKind = iota
	Cancel
	QueryTopOfBook
	Flush
)

// Request is the tagged union the dispatcher feeds to the engine. Only the
// fields relevant to Kind are meaningful; the zero value of the rest is
// ignored.
type Request struct {
	Kind     RequestKind
	ClientID uint64
	OrderID  uint64
	Symbol   string
	Side     book.Side
	Price    uint64
	Qty      uint64
}
