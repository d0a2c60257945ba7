package admin

import (
	"log"
	"net/http"

	"matchengine/internal/engine"
)

type wireEvent struct {
	Kind         string `json:"kind"`
	Symbol       string `json:"symbol,omitempty"`
	ClientID     uint64 `json:"client_id,omitempty"`
	OrderID      uint64 `json:"order_id,omitempty"`
	BuyClientID  uint64 `json:"buy_client_id,omitempty"`
	BuyOrderID   uint64 `json:"buy_order_id,omitempty"`
	SellClientID uint64 `json:"sell_client_id,omitempty"`
	SellOrderID  uint64 `json:"sell_order_id,omitempty"`
	Price        uint64 `json:"price,omitempty"`
	Qty          uint64 `json:"qty,omitempty"`
	HasBid       bool   `json:"has_bid,omitempty"`
	BidPrice     uint64 `json:"bid_price,omitempty"`
	BidQty       uint64 `json:"bid_qty,omitempty"`
	HasAsk       bool   `json:"has_ask,omitempty"`
	AskPrice     uint64 `json:"ask_price,omitempty"`
	AskQty       uint64 `json:"ask_qty,omitempty"`
}

var eventKindNames = map[engine.EventKind]string{
	engine.AckEvent:       "ack",
	engine.CancelAckEvent: "cancel_ack",
	engine.TradeEvent:     "trade",
	engine.TopOfBookEvent: "top_of_book",
}

func toWireEvent(ev engine.Event) wireEvent {
	return wireEvent{
		Kind: eventKindNames[ev.Kind], Symbol: ev.Symbol,
		ClientID: ev.ClientID, OrderID: ev.OrderID,
		BuyClientID: ev.BuyClientID, BuyOrderID: ev.BuyOrderID,
		SellClientID: ev.SellClientID, SellOrderID: ev.SellOrderID,
		Price: ev.Price, Qty: ev.Qty,
		HasBid: ev.HasBid, BidPrice: ev.BidPrice, BidQty: ev.BidQty,
		HasAsk: ev.HasAsk, AskPrice: ev.AskPrice, AskQty: ev.AskQty,
	}
}

// handleEvents upgrades to a websocket and streams every broadcast Event as
// JSON until the peer disconnects. The tap is best-effort: a slow admin
// client drops events rather than ever blocking the dispatcher (§10).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("admin: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	tap := s.dispatcher.Tap(64)
	defer s.dispatcher.RemoveTap()

	for ev := range tap {
		if err := conn.WriteJSON(toWireEvent(ev)); err != nil {
			return
		}
	}
}
