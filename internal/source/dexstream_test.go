package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"AlphaPilot/internal/domain/models"
)

// swapServer upgrades each request to a websocket and plays the given
// frames. With hold set it keeps the connection open until the client
// closes; otherwise it closes shortly after the last frame.
func swapServer(t *testing.T, hold bool, frames ...string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if hold {
			<-readerDone
			return
		}
		time.Sleep(100 * time.Millisecond)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestStream(url string) *DexStream {
	return NewDexStream(DexStreamConfig{
		SourceID:      "dex",
		URL:           url,
		Assets:        []string{"tok1"},
		PingInterval:  10 * time.Millisecond,
		HalfLife:      time.Minute,
		WhaleFloorUSD: 10_000,
		RefSizeUSD:    25_000,
	}).(*DexStream)
}

func TestDexStreamNormalizesSwapFrames(t *testing.T) {
	frame := `{"type":"swap","data":[{"asset":"tok1","side":"buy","amount_usd":12500,"price":1.5,"t":1768478400000}]}`
	srv := swapServer(t, true, frame)
	defer srv.Close()

	c := newTestStream(wsURL(srv))
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	signals, _ := c.Read(ctx)
	select {
	case s := <-signals:
		if s.Direction != models.DirectionBullish {
			t.Fatalf("direction = %v, want bullish for a buy swap", s.Direction)
		}
		if s.Strength != 0.5 {
			t.Fatalf("strength = %v, want 12500/25000", s.Strength)
		}
		whale := false
		for _, tag := range s.Tags {
			if tag == "whale" {
				whale = true
			}
		}
		if !whale {
			t.Fatalf("tags = %v, want whale above the floor", s.Tags)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no signal before timeout")
	}

	select {
	case p := <-c.Prices():
		if p.AssetID != "tok1" || p.Price != 1.5 {
			t.Fatalf("price update = %+v, want tok1 at 1.5", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no price update before timeout")
	}
}

func TestDexStreamReconnectRebindsPingLoop(t *testing.T) {
	srv := swapServer(t, false)
	defer srv.Close()

	c := newTestStream(wsURL(srv))
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, errs := c.Read(ctx)

	c.mu.Lock()
	firstDone := c.connDone
	c.mu.Unlock()

	// the server played no frames and closed; the read loop surfaces it
	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("no stream error after server close")
	}
	if err := c.Reconnect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer c.Close()

	select {
	case <-firstDone:
	default:
		t.Fatal("old connection's ping loop not released on reconnect")
	}

	c.mu.Lock()
	secondDone := c.connDone
	c.mu.Unlock()
	if secondDone == firstDone {
		t.Fatal("reconnect reused the dead connection's done channel")
	}
	select {
	case <-secondDone:
		t.Fatal("fresh connection already marked done")
	default:
	}
}

func TestDexStreamCloseIsIdempotent(t *testing.T) {
	srv := swapServer(t, false)
	defer srv.Close()

	c := newTestStream(wsURL(srv))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if c.IsConnected() {
		t.Fatal("still connected after close")
	}
}
