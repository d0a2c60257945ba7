// Package engine implements the deterministic, single-goroutine matching
// core. An Engine owns every per-symbol Book; nothing outside the goroutine
// running Run ever touches that state. The engine never performs I/O — it
// only consumes Requests from a channel and produces Events onto another.
package engine

import (
	"context"
	"sort"
	"sync/atomic"

	"matchengine/internal/book"
)

// Stats are the engine's side of the aggregate counters the supervisor's
// operational surface reports; they are safe to read from any goroutine.
type Stats struct {
	RequestsReceived atomic.Uint64
	EventsGenerated  atomic.Uint64
}

// Engine is the symbol→Book map plus the request/event channels that let
// the rest of the system talk to it without ever sharing that map.
type Engine struct {
	books  map[string]*book.Book
	locate map[book.Key]string // (client, order id) -> symbol, kept in sync with book indices

	inbox  chan Request
	events chan Event

	stats Stats
}

// New creates an Engine with the given inbound and outbound channel
// capacities. Capacities are a performance tuning knob only: per §5 the
// inbound channel is "unbounded-in-practice", sized well above expected
// burst rather than truly infinite, since Go channels have no such mode.
func New(inboxSize, eventsSize int) *Engine {
	return &Engine{
		books:  make(map[string]*book.Book),
		locate: make(map[book.Key]string),
		inbox:  make(chan Request, inboxSize),
		events: make(chan Event, eventsSize),
	}
}

// Inbox is where the dispatcher sends Requests. A Request's ClientID is the
// one decoded from the wire message, not the originating session's id.
func (e *Engine) Inbox() chan<- Request {
	return e.inbox
}

// Events is the ordered stream of Events the dispatcher fans out to every
// session. It is closed once Run returns.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Stats exposes the engine's atomic counters for read-only access from the
// supervisor's operational surface.
func (e *Engine) Stats() *Stats {
	return &e.stats
}

// Run is the engine's single cooperative task. It suspends only while
// awaiting the next Request; all matching work between suspensions is
// synchronous. Run returns, closing Events, once ctx is cancelled and the
// goroutine reaches its next suspension point.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.events)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.inbox:
			e.stats.RequestsReceived.Add(1)
			e.process(req)
		}
	}
}

func (e *Engine) process(req Request) {
	switch req.Kind {
	case NewOrder:
		e.handleNewOrder(req)
	case Cancel:
		e.handleCancel(req)
	case QueryTopOfBook:
		e.handleQuery(req)
	case Flush:
		e.handleFlush()
	}
}

func (e *Engine) handleNewOrder(req Request) {
	if req.Qty == 0 || req.Price == 0 || req.Symbol == "" || (req.Side != book.Buy && req.Side != book.Sell) {
		return // semantic rejection: silent drop, no Ack, no error event
	}

	e.emit(Event{Kind: AckEvent, ClientID: req.ClientID, OrderID: req.OrderID, Symbol: req.Symbol})

	b := e.bookFor(req.Symbol)
	trades, consumed := b.InsertOrMatch(req.Side, req.Price, req.Qty, req.ClientID, req.OrderID)

	for _, key := range consumed {
		delete(e.locate, key)
	}

	key := book.Key{ClientID: req.ClientID, OrderID: req.OrderID}
	if b.Resting(key) {
		e.locate[key] = req.Symbol
	}

	for _, t := range trades {
		e.emit(Event{
			Kind: TradeEvent, Symbol: t.Symbol,
			BuyClientID: t.BuyClientID, BuyOrderID: t.BuyOrderID,
			SellClientID: t.SellClientID, SellOrderID: t.SellOrderID,
			Price: t.Price, Qty: t.Qty,
		})
	}

	e.emit(e.topOfBookEvent(req.Symbol, b))
}

func (e *Engine) handleCancel(req Request) {
	key := book.Key{ClientID: req.ClientID, OrderID: req.OrderID}
	symbol, ok := e.locate[key]
	if !ok {
		return
	}

	b := e.books[symbol]
	if b == nil || !b.Cancel(req.ClientID, req.OrderID) {
		return
	}
	delete(e.locate, key)

	e.emit(Event{Kind: CancelAckEvent, ClientID: req.ClientID, OrderID: req.OrderID, Symbol: symbol})
}

func (e *Engine) handleQuery(req Request) {
	b := e.books[req.Symbol]
	if b == nil {
		e.emit(Event{Kind: TopOfBookEvent, Symbol: req.Symbol})
		return
	}
	e.emit(e.topOfBookEvent(req.Symbol, b))
}

func (e *Engine) handleFlush() {
	symbols := make([]string, 0, len(e.books))
	for symbol := range e.books {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		b := e.books[symbol]
		for _, key := range b.Drain() {
			delete(e.locate, key)
			e.emit(Event{Kind: CancelAckEvent, ClientID: key.ClientID, OrderID: key.OrderID, Symbol: symbol})
		}
	}
}

func (e *Engine) bookFor(symbol string) *book.Book {
	b, ok := e.books[symbol]
	if !ok {
		b = book.New(symbol)
		e.books[symbol] = b
	}
	return b
}

func (e *Engine) topOfBookEvent(symbol string, b *book.Book) Event {
	bidPrice, bidQty, hasBid, askPrice, askQty, hasAsk := b.TopOfBook()
	return Event{
		Kind: TopOfBookEvent, Symbol: symbol,
		HasBid: hasBid, BidPrice: bidPrice, BidQty: bidQty,
		HasAsk: hasAsk, AskPrice: askPrice, AskQty: askQty,
	}
}

func (e *Engine) emit(ev Event) {
	e.stats.EventsGenerated.Add(1)
	e.events <- ev
}
