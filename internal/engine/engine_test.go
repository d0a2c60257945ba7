package engine

import (
	"context"
	"testing"
	"time"

	"matchengine/internal/book"
)

func runEngine(t *testing.T) (*Engine, context.CancelFunc) {
	e := New(16, 16)
	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	t.Cleanup(cancel)
	return e, cancel
}

func send(e *Engine, req Request) {
	e.Inbox() <- req
}

func recvN(t *testing.T, e *Engine, n int) []Event {
	var out []Event
	for i := 0; i < n; i++ {
		select {
		case ev := <-e.Events():
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d/%d", i+1, n)
		}
	}
	return out
}

func TestScenarioSimpleMatch(t *testing.T) {
	e, _ := runEngine(t)

	send(e, Request{Kind: NewOrder, ClientID: 1, OrderID: 1, Symbol: "IBM", Side: book.Buy, Price: 10, Qty: 100})
	events := recvN(t, e, 2)
	if events[0].Kind != AckEvent || events[0].ClientID != 1 || events[0].OrderID != 1 {
		t.Fatalf("unexpected ack: %+v", events[0])
	}
	if events[1].Kind != TopOfBookEvent || !events[1].HasBid || events[1].BidPrice != 10 || events[1].BidQty != 100 {
		t.Fatalf("unexpected top of book: %+v", events[1])
	}

	send(e, Request{Kind: NewOrder, ClientID: 2, OrderID: 2, Symbol: "IBM", Side: book.Sell, Price: 9, Qty: 50})
	events = recvN(t, e, 3)
	if events[0].Kind != AckEvent || events[0].ClientID != 2 || events[0].OrderID != 2 {
		t.Fatalf("unexpected ack: %+v", events[0])
	}
	if events[1].Kind != TradeEvent || events[1].Price != 10 || events[1].Qty != 50 {
		t.Fatalf("unexpected trade: %+v", events[1])
	}
	if events[1].BuyClientID != 1 || events[1].SellClientID != 2 {
		t.Fatalf("unexpected trade parties: %+v", events[1])
	}
	if events[2].Kind != TopOfBookEvent || !events[2].HasBid || events[2].BidQty != 50 || events[2].HasAsk {
		t.Fatalf("unexpected post-trade top of book: %+v", events[2])
	}
}

func TestScenarioNoCrossResting(t *testing.T) {
	e, _ := runEngine(t)

	send(e, Request{Kind: NewOrder, ClientID: 1, OrderID: 1, Symbol: "IBM", Side: book.Buy, Price: 10, Qty: 100})
	recvN(t, e, 2)

	send(e, Request{Kind: NewOrder, ClientID: 2, OrderID: 2, Symbol: "IBM", Side: book.Sell, Price: 11, Qty: 50})
	events := recvN(t, e, 2)
	if events[0].Kind != AckEvent {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	tob := events[1]
	if tob.Kind != TopOfBookEvent || !tob.HasBid || tob.BidPrice != 10 || !tob.HasAsk || tob.AskPrice != 11 {
		t.Fatalf("unexpected top of book: %+v", tob)
	}
}

func TestScenarioCancel(t *testing.T) {
	e, _ := runEngine(t)

	send(e, Request{Kind: NewOrder, ClientID: 1, OrderID: 1, Symbol: "IBM", Side: book.Buy, Price: 10, Qty: 100})
	recvN(t, e, 2)

	send(e, Request{Kind: Cancel, ClientID: 1, OrderID: 1})
	events := recvN(t, e, 1)
	if events[0].Kind != CancelAckEvent || events[0].ClientID != 1 || events[0].OrderID != 1 {
		t.Fatalf("unexpected cancel ack: %+v", events[0])
	}

	send(e, Request{Kind: Cancel, ClientID: 1, OrderID: 1})
	select {
	case ev := <-e.Events():
		t.Fatalf("expected no event for repeat cancel, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScenarioFlush(t *testing.T) {
	e, _ := runEngine(t)

	send(e, Request{Kind: NewOrder, ClientID: 1, OrderID: 1, Symbol: "IBM", Side: book.Buy, Price: 10, Qty: 100})
	recvN(t, e, 2)
	send(e, Request{Kind: NewOrder, ClientID: 1, OrderID: 2, Symbol: "IBM", Side: book.Buy, Price: 9, Qty: 200})
	recvN(t, e, 2)
	send(e, Request{Kind: NewOrder, ClientID: 2, OrderID: 3, Symbol: "IBM", Side: book.Sell, Price: 9, Qty: 250})
	recvN(t, e, 4)

	send(e, Request{Kind: Flush})
	events := recvN(t, e, 1)
	if events[0].Kind != CancelAckEvent || events[0].ClientID != 1 || events[0].OrderID != 2 {
		t.Fatalf("expected cancel ack for remaining order (1,2), got %+v", events[0])
	}

	send(e, Request{Kind: QueryTopOfBook, Symbol: "IBM"})
	tob := recvN(t, e, 1)[0]
	if tob.HasBid || tob.HasAsk {
		t.Fatalf("book should be empty after flush: %+v", tob)
	}
}

func TestScenarioQueryUnknownSymbol(t *testing.T) {
	e, _ := runEngine(t)

	send(e, Request{Kind: QueryTopOfBook, Symbol: "ZZZ"})
	tob := recvN(t, e, 1)[0]
	if tob.Kind != TopOfBookEvent || tob.HasBid || tob.HasAsk {
		t.Fatalf("expected sentinel top of book, got %+v", tob)
	}
}

func TestSemanticRejectionIsSilent(t *testing.T) {
	e, _ := runEngine(t)

	send(e, Request{Kind: NewOrder, ClientID: 1, OrderID: 1, Symbol: "IBM", Side: book.Buy, Price: 0, Qty: 100})
	select {
	case ev := <-e.Events():
		t.Fatalf("expected no event for zero-price order, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStatsCountRequestsAndEvents(t *testing.T) {
	e, _ := runEngine(t)

	send(e, Request{Kind: NewOrder, ClientID: 1, OrderID: 1, Symbol: "IBM", Side: book.Buy, Price: 10, Qty: 100})
	recvN(t, e, 2)

	if got := e.Stats().RequestsReceived.Load(); got != 1 {
		t.Fatalf("got RequestsReceived=%d, want 1", got)
	}
	if got := e.Stats().EventsGenerated.Load(); got != 2 {
		t.Fatalf("got EventsGenerated=%d, want 2", got)
	}
}
