// Package book implements the per-symbol limit order book: two
// price-ordered sides, FIFO priority within a price, and an index that
// gives O(1) cancellation. A Book is plain data; it is never shared across
// goroutines — the engine package owns exactly one goroutine that touches it.
package book

import "container/list"

// entry is the index's handle into a resting order: which side/level it
// rests on, and the list element so Cancel never has to scan a level.
type entry struct {
	side  Side
	level *PriceLevel
	elem  *list.Element
}

// Book holds every resting order for a single symbol.
type Book struct {
	Symbol string

	bids []*PriceLevel // sorted descending by price (best bid first)
	asks []*PriceLevel // sorted ascending by price (best ask first)

	index map[Key]*entry
}

// New creates an empty book for symbol.
func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		index:  make(map[Key]*entry),
	}
}

// InsertOrMatch runs the canonical matching algorithm for an incoming order:
// it sweeps the contra side while prices cross, generating trades at the
// resting (passive) order's price, then rests any unfilled remainder.
// Callers must have already validated qty > 0 and price > 0.
// consumed reports every resting order fully filled and removed from the
// book during the call, so a caller maintaining its own order→symbol
// lookaside (the engine does) can keep it in sync without rescanning.
func (b *Book) InsertOrMatch(side Side, price, qty uint64, clientID, orderID uint64) (trades []Trade, consumed []Key) {
	if side == Buy {
		trades, consumed = b.sweep(&b.asks, price, &qty, clientID, orderID, side, func(restPrice uint64) bool {
			return restPrice <= price
		})
	} else {
		trades, consumed = b.sweep(&b.bids, price, &qty, clientID, orderID, side, func(restPrice uint64) bool {
			return restPrice >= price
		})
	}

	if qty > 0 {
		b.rest(side, price, qty, clientID, orderID)
	}

	return trades, consumed
}

// sweep consumes levels of the opposing side while crosses(level.Price) is
// true, filling the incoming order front-to-back within each level.
func (b *Book) sweep(opposite *[]*PriceLevel, incomingPrice uint64, qty *uint64, clientID, orderID uint64, side Side, crosses func(uint64) bool) (trades []Trade, consumed []Key) {
	for *qty > 0 && len(*opposite) > 0 {
		level := (*opposite)[0]
		if !crosses(level.Price) {
			break
		}

		for *qty > 0 {
			front := level.front()
			if front == nil {
				break
			}
			resting := front.Value.(*Order)

			fill := *qty
			if resting.Qty < fill {
				fill = resting.Qty
			}

			trades = append(trades, b.makeTrade(side, clientID, orderID, resting, fill, level.Price))

			*qty -= fill
			resting.Qty -= fill

			if resting.Qty == 0 {
				level.remove(front)
				key := Key{ClientID: resting.ClientID, OrderID: resting.OrderID}
				delete(b.index, key)
				consumed = append(consumed, key)
			}
		}

		if level.empty() {
			*opposite = (*opposite)[1:]
		}
	}

	return trades, consumed
}

func (b *Book) makeTrade(incomingSide Side, incomingClient, incomingOrder uint64, resting *Order, qty, price uint64) Trade {
	t := Trade{Symbol: b.Symbol, Price: price, Qty: qty}
	if incomingSide == Buy {
		t.BuyClientID, t.BuyOrderID = incomingClient, incomingOrder
		t.SellClientID, t.SellOrderID = resting.ClientID, resting.OrderID
	} else {
		t.SellClientID, t.SellOrderID = incomingClient, incomingOrder
		t.BuyClientID, t.BuyOrderID = resting.ClientID, resting.OrderID
	}
	return t
}

func (b *Book) rest(side Side, price, qty, clientID, orderID uint64) {
	order := &Order{ClientID: clientID, OrderID: orderID, Price: price, Qty: qty, Side: side}

	var levels *[]*PriceLevel
	var better func(a, bPrice uint64) bool
	if side == Buy {
		levels = &b.bids
		better = func(a, bPrice uint64) bool { return a > bPrice }
	} else {
		levels = &b.asks
		better = func(a, bPrice uint64) bool { return a < bPrice }
	}

	for _, level := range *levels {
		if level.Price == price {
			elem := level.pushBack(order)
			b.index[Key{ClientID: clientID, OrderID: orderID}] = &entry{side: side, level: level, elem: elem}
			return
		}
	}

	level := newPriceLevel(price)
	elem := level.pushBack(order)
	b.index[Key{ClientID: clientID, OrderID: orderID}] = &entry{side: side, level: level, elem: elem}

	insertAt := len(*levels)
	for i, l := range *levels {
		if better(price, l.Price) {
			insertAt = i
			break
		}
	}
	*levels = append(*levels, nil)
	copy((*levels)[insertAt+1:], (*levels)[insertAt:])
	(*levels)[insertAt] = level
}

// Resting reports whether key currently identifies a resting order.
func (b *Book) Resting(key Key) bool {
	_, ok := b.index[key]
	return ok
}

// Cancel removes a resting order by (client, order id). It reports whether
// an order was actually found and removed.
func (b *Book) Cancel(clientID, orderID uint64) bool {
	key := Key{ClientID: clientID, OrderID: orderID}
	e, ok := b.index[key]
	if !ok {
		return false
	}
	delete(b.index, key)
	e.level.remove(e.elem)

	if e.level.empty() {
		b.dropLevel(e.side, e.level)
	}
	return true
}

func (b *Book) dropLevel(side Side, level *PriceLevel) {
	levels := &b.bids
	if side == Sell {
		levels = &b.asks
	}
	for i, l := range *levels {
		if l == level {
			*levels = append((*levels)[:i], (*levels)[i+1:]...)
			return
		}
	}
}

// TopOfBook reports the best bid and best ask, if any. Aggregate quantity
// is the sum of remaining quantity across every order resting at that one
// best level, not across the whole side.
func (b *Book) TopOfBook() (bidPrice, bidQty uint64, hasBid bool, askPrice, askQty uint64, hasAsk bool) {
	if len(b.bids) > 0 {
		hasBid = true
		bidPrice = b.bids[0].Price
		bidQty = b.bids[0].TotalQty()
	}
	if len(b.asks) > 0 {
		hasAsk = true
		askPrice = b.asks[0].Price
		askQty = b.asks[0].TotalQty()
	}
	return
}

// Drain removes every resting order from both sides, returning every
// identity in a deterministic order: bids best-first then FIFO, then asks
// best-first then FIFO.
func (b *Book) Drain() []Key {
	var keys []Key

	for _, level := range b.bids {
		for e := level.front(); e != nil; e = e.Next() {
			o := e.Value.(*Order)
			keys = append(keys, Key{ClientID: o.ClientID, OrderID: o.OrderID})
		}
	}
	for _, level := range b.asks {
		for e := level.front(); e != nil; e = e.Next() {
			o := e.Value.(*Order)
			keys = append(keys, Key{ClientID: o.ClientID, OrderID: o.OrderID})
		}
	}

	b.bids = nil
	b.asks = nil
	b.index = make(map[Key]*entry)

	return keys
}
