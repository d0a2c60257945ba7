package protocol

import (
	"bufio"
	"bytes"
	"testing"

	"matchengine/internal/book"
	"matchengine/internal/engine"
)

func TestCSVDecodeNewOrder(t *testing.T) {
	d := newCSVDecoder(bufio.NewReader(bytes.NewBufferString("N,1,IBM,10,100,B,1\n")))
	req, err := d.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := engine.Request{Kind: engine.NewOrder, ClientID: 1, OrderID: 1, Symbol: "IBM", Side: book.Buy, Price: 10, Qty: 100}
	if req != want {
		t.Fatalf("got %+v, want %+v", req, want)
	}
}

func TestCSVDecodeCancel(t *testing.T) {
	d := newCSVDecoder(bufio.NewReader(bytes.NewBufferString("C,1,1\r\n")))
	req, err := d.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := engine.Request{Kind: engine.Cancel, ClientID: 1, OrderID: 1}
	if req != want {
		t.Fatalf("got %+v, want %+v", req, want)
	}
}

func TestCSVDecodeFlush(t *testing.T) {
	d := newCSVDecoder(bufio.NewReader(bytes.NewBufferString("F\n")))
	req, err := d.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.Kind != engine.Flush {
		t.Fatalf("got kind %v, want Flush", req.Kind)
	}
}

func TestCSVDecodeRejectsBadTag(t *testing.T) {
	d := newCSVDecoder(bufio.NewReader(bytes.NewBufferString("Z,1\n")))
	if _, err := d.Decode(); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
}

func TestCSVEncodeAck(t *testing.T) {
	out, err := csvEncoder{}.Encode(engine.Event{Kind: engine.AckEvent, ClientID: 1, OrderID: 1, Symbol: "IBM"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got, want := string(out[0]), "A,1,1,IBM\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCSVEncodeTopOfBookBothSides(t *testing.T) {
	out, err := csvEncoder{}.Encode(engine.Event{
		Kind: engine.TopOfBookEvent, Symbol: "IBM",
		HasBid: true, BidPrice: 10, BidQty: 100,
		HasAsk: true, AskPrice: 11, AskQty: 50,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d lines, want 2", len(out))
	}
	if string(out[0]) != "B,IBM,B,10,100\n" || string(out[1]) != "B,IBM,S,11,50\n" {
		t.Fatalf("unexpected lines: %q %q", out[0], out[1])
	}
}

func TestCSVEncodeTopOfBookSentinel(t *testing.T) {
	out, err := csvEncoder{}.Encode(engine.Event{Kind: engine.TopOfBookEvent, Symbol: "ZZZ"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) != 1 || string(out[0]) != "B,ZZZ,B,0,0\n" {
		t.Fatalf("unexpected sentinel line: %q", out)
	}
}

func TestBinaryRoundTripNewOrder(t *testing.T) {
	req := engine.Request{Kind: engine.NewOrder, ClientID: 7, OrderID: 42, Symbol: "IBM", Side: book.Sell, Price: 11, Qty: 50}

	var buf bytes.Buffer
	buf.Write(frameNewOrderForTest(req))

	d := newBinaryDecoder(bufio.NewReader(&buf))
	got, err := d.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != req {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func frameNewOrderForTest(req engine.Request) []byte {
	sym := encodeSymbol(req.Symbol)
	payload := make([]byte, 1+8+symbolWidth+8+8+1+8)
	payload[0] = 'N'
	off := 1
	putUint64(payload[off:off+8], req.OrderID)
	off += 8
	copy(payload[off:off+symbolWidth], sym[:])
	off += symbolWidth
	putUint64(payload[off:off+8], req.Price)
	off += 8
	putUint64(payload[off:off+8], req.Qty)
	off += 8
	payload[off] = sideByte(req.Side)
	off++
	putUint64(payload[off:off+8], req.ClientID)
	return frame(payload)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func TestBinaryEncodeTrade(t *testing.T) {
	ev := engine.Event{
		Kind: engine.TradeEvent, Symbol: "IBM",
		BuyClientID: 1, BuyOrderID: 1, SellClientID: 2, SellOrderID: 2, Price: 10, Qty: 50,
	}
	frames, err := binaryEncoder{}.Encode(ev)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}

	// Trade frames are outbound-only; check the length header by hand.
	var length uint32
	if err := readUint32(frames[0][:4], &length); err != nil {
		t.Fatalf("length: %v", err)
	}
	if int(length) != len(frames[0])-4 {
		t.Fatalf("frame length header %d does not match payload %d", length, len(frames[0])-4)
	}
}

func readUint32(b []byte, out *uint32) error {
	if len(b) != 4 {
		return bufio.ErrBadReadCount
	}
	*out = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return nil
}

func TestSniff(t *testing.T) {
	if Sniff('N') != CSV {
		t.Fatalf("printable byte should sniff as CSV")
	}
	if Sniff(0x00) != Binary {
		t.Fatalf("control byte should sniff as Binary")
	}
}
