package protocol

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"matchengine/internal/book"
	"matchengine/internal/engine"
)

type csvDecoder struct {
	r *bufio.Reader
}

func newCSVDecoder(r *bufio.Reader) *csvDecoder {
	return &csvDecoder{r: r}
}

func (d *csvDecoder) Decode() (engine.Request, error) {
	line, err := d.r.ReadString('\n')
	if err != nil && line == "" {
		return engine.Request{}, err
	}
	line = strings.TrimRight(line, "\r\n")

	fields := splitCSV(line)
	if len(fields) == 0 {
		return engine.Request{}, fmt.Errorf("protocol: empty line")
	}

	switch fields[0] {
	case "N":
		return decodeNewOrder(fields[1:])
	case "C":
		return decodeCancel(fields[1:])
	case "Q":
		return decodeQuery(fields[1:])
	case "F":
		if len(fields) != 1 {
			return engine.Request{}, fmt.Errorf("protocol: F takes no fields")
		}
		return engine.Request{Kind: engine.Flush}, nil
	default:
		return engine.Request{}, fmt.Errorf("protocol: unknown tag %q", fields[0])
	}
}

func decodeNewOrder(f []string) (engine.Request, error) {
	if len(f) != 6 {
		return engine.Request{}, fmt.Errorf("protocol: N wants 6 fields, got %d", len(f))
	}
	orderID, err := parseUint(f[0])
	if err != nil {
		return engine.Request{}, err
	}
	symbol := f[1]
	price, err := parseUint(f[2])
	if err != nil {
		return engine.Request{}, err
	}
	qty, err := parseUint(f[3])
	if err != nil {
		return engine.Request{}, err
	}
	side, err := parseSide(f[4])
	if err != nil {
		return engine.Request{}, err
	}
	clientID, err := parseUint(f[5])
	if err != nil {
		return engine.Request{}, err
	}
	return engine.Request{
		Kind: engine.NewOrder, ClientID: clientID, OrderID: orderID,
		Symbol: symbol, Side: side, Price: price, Qty: qty,
	}, nil
}

func decodeCancel(f []string) (engine.Request, error) {
	if len(f) != 2 {
		return engine.Request{}, fmt.Errorf("protocol: C wants 2 fields, got %d", len(f))
	}
	clientID, err := parseUint(f[0])
	if err != nil {
		return engine.Request{}, err
	}
	orderID, err := parseUint(f[1])
	if err != nil {
		return engine.Request{}, err
	}
	return engine.Request{Kind: engine.Cancel, ClientID: clientID, OrderID: orderID}, nil
}

func decodeQuery(f []string) (engine.Request, error) {
	if len(f) != 1 {
		return engine.Request{}, fmt.Errorf("protocol: Q wants 1 field, got %d", len(f))
	}
	return engine.Request{Kind: engine.QueryTopOfBook, Symbol: f[0]}, nil
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("protocol: bad integer %q: %w", s, err)
	}
	return v, nil
}

func parseSide(s string) (book.Side, error) {
	switch s {
	case "B":
		return book.Buy, nil
	case "S":
		return book.Sell, nil
	default:
		return 0, fmt.Errorf("protocol: bad side %q", s)
	}
}

func splitCSV(line string) []string {
	raw := strings.Split(line, ",")
	out := make([]string, len(raw))
	for i, f := range raw {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

type csvEncoder struct{}

func (csvEncoder) Encode(ev engine.Event) ([][]byte, error) {
	switch ev.Kind {
	case engine.AckEvent:
		return line("A,%d,%d,%s", ev.OrderID, ev.ClientID, ev.Symbol), nil
	case engine.CancelAckEvent:
		return line("X,%d,%d,%s", ev.OrderID, ev.ClientID, ev.Symbol), nil
	case engine.TradeEvent:
		return line("T,%s,%d,%d,%d,%d,%d,%d", ev.Symbol, ev.BuyOrderID, ev.BuyClientID, ev.SellOrderID, ev.SellClientID, ev.Price, ev.Qty), nil
	case engine.TopOfBookEvent:
		return encodeTopOfBook(ev), nil
	default:
		return nil, fmt.Errorf("protocol: unknown event kind %d", ev.Kind)
	}
}

func encodeTopOfBook(ev engine.Event) [][]byte {
	var out [][]byte
	if ev.HasBid {
		out = append(out, line("B,%s,B,%d,%d", ev.Symbol, ev.BidPrice, ev.BidQty)...)
	}
	if ev.HasAsk {
		out = append(out, line("B,%s,S,%d,%d", ev.Symbol, ev.AskPrice, ev.AskQty)...)
	}
	if out == nil {
		out = line("B,%s,B,0,0", ev.Symbol)
	}
	return out
}

func line(format string, args ...any) [][]byte {
	return [][]byte{[]byte(fmt.Sprintf(format+"\n", args...))}
}
