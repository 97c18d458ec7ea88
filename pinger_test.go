package ddns_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rtcsdk/ddns"
)

func TestParsePingURL(t *testing.T) {
	tests := []struct {
		url     string
		addr    string
		payload string
	}{
		{"udp://127.0.0.1:5000?line=abc", "127.0.0.1:5000", "abc\r\n"},
		{"udp://127.0.0.1:5000", "127.0.0.1:5000", "hello ddns\r\n"},
		{"udp://127.0.0.1:5000?line=hello-ddns&x=1", "127.0.0.1:5000", "hello-ddns\r\n"},
		{"udp://127.0.0.1:5000?line=", "127.0.0.1:5000", "\r\n"},
		{"udp://example.com:5000?line=a%20b", "example.com:5000", "a b\r\n"},
		{"udp://[::1]:5000", "[::1]:5000", "hello ddns\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			target, err := ddns.ParsePingURL(tt.url)
			if err != nil {
				t.Fatalf("ParsePingURL(%q): %s", tt.url, err)
			}
			if target.Addr() != tt.addr {
				t.Errorf("Expected addr %q; got %q", tt.addr, target.Addr())
			}
			if string(target.Payload) != tt.payload {
				t.Errorf("Expected payload %q; got %q", tt.payload, target.Payload)
			}
		})
	}
}

func TestParsePingURLErrors(t *testing.T) {
	for _, raw := range []string{
		"tcp://127.0.0.1:5000",
		"http://127.0.0.1:5000?line=abc",
		"udp://127.0.0.1",
		"udp://:5000",
		"udp://127.0.0.1:99999",
		"127.0.0.1:5000",
		"://bad",
	} {
		if _, err := ddns.ParsePingURL(raw); err == nil {
			t.Errorf("ParsePingURL(%q): expected error", raw)
		}
	}
}

func TestPingerSends(t *testing.T) {
	tests := []struct {
		query   string
		payload string
	}{
		{"?line=abc", "abc\r\n"},
		{"", "hello ddns\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			listener, err := net.ListenPacket("udp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			defer listener.Close()

			target, err := ddns.ParsePingURL("udp://" + listener.LocalAddr().String() + tt.query)
			if err != nil {
				t.Fatalf("ParsePingURL: %s", err)
			}
			p, err := ddns.ListenPinger(target, nil)
			if err != nil {
				t.Fatalf("ListenPinger: %s", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- p.Run(ctx, 10*time.Millisecond) }()

			buf := make([]byte, 1500)
			for i := 0; i < 2; i++ {
				listener.SetReadDeadline(time.Now().Add(time.Second))
				n, _, err := listener.ReadFrom(buf)
				if err != nil {
					t.Fatalf("datagram %d: %s", i, err)
				}
				if got := string(buf[:n]); got != tt.payload {
					t.Fatalf("datagram %d: expected %q; got %q", i, tt.payload, got)
				}
			}

			cancel()
			select {
			case err := <-done:
				if !errors.Is(err, context.Canceled) {
					t.Fatalf("Expected context.Canceled; got %v", err)
				}
			case <-time.After(time.Second):
				t.Fatal("Run did not return after cancel")
			}
		})
	}
}
