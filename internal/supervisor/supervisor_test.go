package supervisor

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"matchengine/internal/dispatcher"
	"matchengine/internal/engine"
)

func TestListenPortFallback(t *testing.T) {
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer blocker.Close()

	port := blocker.Addr().(*net.TCPAddr).Port

	e := engine.New(16, 16)
	d := dispatcher.New(e.Inbox())

	sup, attempts, err := Listen("127.0.0.1", port, d)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer sup.listener.Close()

	if attempts != 2 {
		t.Fatalf("got %d attempts, want 2 (first port busy)", attempts)
	}
}

func TestEndToEndOrderRoundTrip(t *testing.T) {
	e := engine.New(16, 16)
	d := dispatcher.New(e.Inbox())

	sup, _, err := Listen("127.0.0.1", 0, d)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go e.Run(ctx)
	go d.Run(e.Events())
	go sup.Run(ctx)

	conn, err := net.Dial("tcp", sup.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("N,1,IBM,10,100,B,1\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)

	ack, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString ack: %v", err)
	}
	if ack != "A,1,1,IBM\n" {
		t.Fatalf("got %q, want %q", ack, "A,1,1,IBM\n")
	}

	tob, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString tob: %v", err)
	}
	if tob != "B,IBM,B,10,100\n" {
		t.Fatalf("got %q, want %q", tob, "B,IBM,B,10,100\n")
	}
}
