package client_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quietport/rft/client"
	"github.com/quietport/rft/receiver"
	"github.com/quietport/rft/types"
	"github.com/quietport/rft/wire"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(bytes.NewBuffer(nil))
	return logrus.NewEntry(l)
}

// fakeServer answers every REQ it receives on conn (GET and RESEND alike)
// with a single DATA segment carrying content, ignoring ACKs -- enough to exercise
// client.Fetch's happy path without depending on package dispatch.
func fakeServer(t *testing.T, conn *net.UDPConn, content []byte) {
	t.Helper()
	buf := make([]byte, wire.MaxPacketSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		h, _, err := wire.Decode(buf[:n])
		if err != nil || h.Type != wire.TypeREQ {
			continue
		}
		pkt, err := wire.Encode(wire.Header{Type: wire.TypeDATA, SeqNum: 0, TotalSegs: 1, Flags: wire.FlagLast}, content)
		if err != nil {
			t.Errorf("Encode DATA: %v", err)
			return
		}
		if _, err := conn.WriteToUDP(pkt, addr); err != nil {
			return
		}
	}
}

func TestFetchHappyPath(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP server: %v", err)
	}
	defer serverConn.Close()
	content := []byte("hello, reliable udp")
	go fakeServer(t, serverConn, content)

	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP client: %v", err)
	}
	defer clientConn.Close()

	var sink bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = client.Fetch(ctx, clientConn, serverConn.LocalAddr().(*net.UDPAddr), "greeting.txt", &sink, client.Options{}, testLogger(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if sink.String() != string(content) {
		t.Fatalf("got %q, want %q", sink.String(), content)
	}
}

func TestFetchFailsWhenServerNeverResponds(t *testing.T) {
	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP client: %v", err)
	}
	defer clientConn.Close()

	deadConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP dead: %v", err)
	}
	deadAddr := deadConn.LocalAddr().(*net.UDPAddr)
	deadConn.Close()

	var sink bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := client.Options{
		RequestRetryInterval: time.Millisecond,
		MaxRequestRetries:    3,
		Receiver:             receiver.Options{ClientIdleTimeout: time.Hour},
	}
	err = client.Fetch(ctx, clientConn, deadAddr, "missing.txt", &sink, opts, testLogger(), nil)
	if err != types.ErrPeerUnreachable {
		t.Fatalf("got %v, want ErrPeerUnreachable", err)
	}
}

func TestFetchSurfacesServerErr(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP server: %v", err)
	}
	defer serverConn.Close()

	go func() {
		buf := make([]byte, wire.MaxPacketSize)
		n, addr, err := serverConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if _, _, err := wire.Decode(buf[:n]); err != nil {
			return
		}
		pkt, _ := wire.Encode(wire.Header{Type: wire.TypeERR}, []byte("unknown file"))
		serverConn.WriteToUDP(pkt, addr)
	}()

	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP client: %v", err)
	}
	defer clientConn.Close()

	var sink bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = client.Fetch(ctx, clientConn, serverConn.LocalAddr().(*net.UDPAddr), "missing.txt", &sink, client.Options{}, testLogger(), nil)
	if err == nil {
		t.Fatalf("expected an error surfaced from the server's ERR packet")
	}
}
