package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"matchengine/internal/book"
	"matchengine/internal/engine"
)

const symbolWidth = 16

type binaryDecoder struct {
	r *bufio.Reader
}

func newBinaryDecoder(r *bufio.Reader) *binaryDecoder {
	return &binaryDecoder{r: r}
}

func (d *binaryDecoder) Decode() (engine.Request, error) {
	var length uint32
	if err := binary.Read(d.r, binary.LittleEndian, &length); err != nil {
		return engine.Request{}, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		if err == io.EOF {
			err = errShortFrame
		}
		return engine.Request{}, err
	}
	if len(payload) == 0 {
		return engine.Request{}, fmt.Errorf("protocol: empty frame")
	}

	switch payload[0] {
	case 'N':
		return decodeBinaryNewOrder(payload[1:])
	case 'C':
		return decodeBinaryCancel(payload[1:])
	case 'Q':
		return decodeBinaryQuery(payload[1:])
	case 'F':
		return engine.Request{Kind: engine.Flush}, nil
	default:
		return engine.Request{}, fmt.Errorf("protocol: unknown tag byte %#x", payload[0])
	}
}

func decodeBinaryNewOrder(f []byte) (engine.Request, error) {
	const want = 8 + symbolWidth + 8 + 8 + 1 + 8
	if len(f) != want {
		return engine.Request{}, fmt.Errorf("protocol: N frame wants %d bytes, got %d", want, len(f))
	}
	orderID := binary.LittleEndian.Uint64(f[0:8])
	symbol := decodeSymbol(f[8 : 8+symbolWidth])
	off := 8 + symbolWidth
	price := binary.LittleEndian.Uint64(f[off : off+8])
	qty := binary.LittleEndian.Uint64(f[off+8 : off+16])
	side, err := decodeSideByte(f[off+16])
	if err != nil {
		return engine.Request{}, err
	}
	clientID := binary.LittleEndian.Uint64(f[off+17 : off+25])
	return engine.Request{
		Kind: engine.NewOrder, ClientID: clientID, OrderID: orderID,
		Symbol: symbol, Side: side, Price: price, Qty: qty,
	}, nil
}

func decodeBinaryCancel(f []byte) (engine.Request, error) {
	if len(f) != 16 {
		return engine.Request{}, fmt.Errorf("protocol: C frame wants 16 bytes, got %d", len(f))
	}
	clientID := binary.LittleEndian.Uint64(f[0:8])
	orderID := binary.LittleEndian.Uint64(f[8:16])
	return engine.Request{Kind: engine.Cancel, ClientID: clientID, OrderID: orderID}, nil
}

func decodeBinaryQuery(f []byte) (engine.Request, error) {
	if len(f) != symbolWidth {
		return engine.Request{}, fmt.Errorf("protocol: Q frame wants %d bytes, got %d", symbolWidth, len(f))
	}
	return engine.Request{Kind: engine.QueryTopOfBook, Symbol: decodeSymbol(f)}, nil
}

func decodeSideByte(b byte) (book.Side, error) {
	switch b {
	case 1:
		return book.Buy, nil
	case 2:
		return book.Sell, nil
	default:
		return 0, fmt.Errorf("protocol: bad side byte %d", b)
	}
}

func sideByte(s book.Side) byte {
	if s == book.Buy {
		return 1
	}
	return 2
}

func encodeSymbol(s string) [symbolWidth]byte {
	var out [symbolWidth]byte
	copy(out[:], s)
	return out
}

func decodeSymbol(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

type binaryEncoder struct{}

func (binaryEncoder) Encode(ev engine.Event) ([][]byte, error) {
	switch ev.Kind {
	case engine.AckEvent:
		return []([]byte){frameAckOrCancel('A', ev)}, nil
	case engine.CancelAckEvent:
		return []([]byte){frameAckOrCancel('X', ev)}, nil
	case engine.TradeEvent:
		return []([]byte){frameTrade(ev)}, nil
	case engine.TopOfBookEvent:
		return frameTopOfBook(ev), nil
	default:
		return nil, fmt.Errorf("protocol: unknown event kind %d", ev.Kind)
	}
}

func frameAckOrCancel(tag byte, ev engine.Event) []byte {
	sym := encodeSymbol(ev.Symbol)
	payload := make([]byte, 1+8+8+symbolWidth)
	payload[0] = tag
	binary.LittleEndian.PutUint64(payload[1:9], ev.OrderID)
	binary.LittleEndian.PutUint64(payload[9:17], ev.ClientID)
	copy(payload[17:], sym[:])
	return frame(payload)
}

func frameTrade(ev engine.Event) []byte {
	sym := encodeSymbol(ev.Symbol)
	payload := make([]byte, 1+symbolWidth+8+8+8+8+8+8)
	payload[0] = 'T'
	off := 1
	copy(payload[off:off+symbolWidth], sym[:])
	off += symbolWidth
	binary.LittleEndian.PutUint64(payload[off:off+8], ev.BuyOrderID)
	off += 8
	binary.LittleEndian.PutUint64(payload[off:off+8], ev.BuyClientID)
	off += 8
	binary.LittleEndian.PutUint64(payload[off:off+8], ev.SellOrderID)
	off += 8
	binary.LittleEndian.PutUint64(payload[off:off+8], ev.SellClientID)
	off += 8
	binary.LittleEndian.PutUint64(payload[off:off+8], ev.Price)
	off += 8
	binary.LittleEndian.PutUint64(payload[off:off+8], ev.Qty)
	return frame(payload)
}

func frameTopOfBook(ev engine.Event) [][]byte {
	var out [][]byte
	if ev.HasBid {
		out = append(out, frameBookSide(ev.Symbol, book.Buy, ev.BidPrice, ev.BidQty))
	}
	if ev.HasAsk {
		out = append(out, frameBookSide(ev.Symbol, book.Sell, ev.AskPrice, ev.AskQty))
	}
	if out == nil {
		out = [][]byte{frameBookSide(ev.Symbol, book.Buy, 0, 0)}
	}
	return out
}

func frameBookSide(symbol string, side book.Side, price, qty uint64) []byte {
	sym := encodeSymbol(symbol)
	payload := make([]byte, 1+symbolWidth+1+8+8)
	payload[0] = 'B'
	off := 1
	copy(payload[off:off+symbolWidth], sym[:])
	off += symbolWidth
	payload[off] = sideByte(side)
	off++
	binary.LittleEndian.PutUint64(payload[off:off+8], price)
	off += 8
	binary.LittleEndian.PutUint64(payload[off:off+8], qty)
	return frame(payload)
}

func frame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}
