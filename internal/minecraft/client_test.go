package minecraft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/keyboard-slayer/mcstatus/internal/address"
	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
)

const vanillaStatus = `{"players":{"online":3,"max":20},"description":"A Minecraft Server"}`

func TestHandshakeWire(t *testing.T) {
	got, err := handshake{protocol: statusProtocolVersion, host: "localhost", port: 25565, next: StateStatus}.bytes()
	if err != nil {
		t.Fatal(err)
	}

	want := []byte{
		0x0f,                                              // length
		0x00,                                              // packet id
		0x00,                                              // protocol version
		0x09, 'l', 'o', 'c', 'a', 'l', 'h', 'o', 's', 't', // host
		0x63, 0xdd,                                        // port
		0x01,                                              // next state
	}

	if !bytes.Equal(got, want) {
		t.Errorf("handshake is % x, want % x", got, want)
	}

	request, err := statusRequest()
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(request, []byte{0x01, 0x00}) {
		t.Errorf("status request is % x", request)
	}
}

func TestQuery(t *testing.T) {
	done := make(chan error, 1)
	endpoint := newFakeServer(t, func(c *fakeConn) {
		if err := c.expectStatusRequest(); err != nil {
			done <- err
			return
		}
		done <- c.sendStatus(vanillaStatus)
	})

	status, err := Query(context.Background(), endpoint, WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}

	if err := <-done; err != nil {
		t.Fatalf("server: %s", err)
	}

	if status.Players.Online != 3 || status.Players.Max != 20 {
		t.Errorf("players are %d/%d, want 3/20", status.Players.Online, status.Players.Max)
	}

	if status.Description.String() != "A Minecraft Server" {
		t.Errorf("description is %q", status.Description.String())
	}

	if status.Latency != 0 {
		t.Errorf("latency is %s without a ping", status.Latency)
	}
}

func TestQueryChunkedResponse(t *testing.T) {
	for _, size := range []int{1, 2, 3, 7, 64} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			endpoint := newFakeServer(t, func(c *fakeConn) {
				if err := c.expectStatusRequest(); err != nil {
					t.Error(err)
					return
				}

				packet, _ := encodePacket(statusResponseID, vanillaStatus)
				c.sendChunked(packet, size)
			})

			status, err := Query(context.Background(), endpoint, WithTimeout(5*time.Second))
			if err != nil {
				t.Fatal(err)
			}

			if status.Players.Online != 3 || status.Description.String() != "A Minecraft Server" {
				t.Errorf("status is %+v", status)
			}
		})
	}
}

func TestQueryWithPing(t *testing.T) {
	endpoint := newFakeServer(t, func(c *fakeConn) {
		if err := c.expectStatusRequest(); err != nil {
			t.Error(err)
			return
		}
		c.sendStatus(vanillaStatus)
		time.Sleep(5 * time.Millisecond)
		if err := c.answerPing(); err != nil {
			t.Error(err)
		}
	})

	status, err := Query(context.Background(), endpoint, WithTimeout(time.Second), WithPing())
	if err != nil {
		t.Fatal(err)
	}

	if status.Latency < 5*time.Millisecond {
		t.Errorf("latency is %s", status.Latency)
	}
}

func TestQueryProgressAndLogging(t *testing.T) {
	endpoint := newFakeServer(t, func(c *fakeConn) {
		c.expectStatusRequest()
		c.sendStatus(vanillaStatus)
		c.answerPing()
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var steps []Step
	_, err := Query(context.Background(), endpoint,
		WithTimeout(time.Second),
		WithPing(),
		WithLogger(logger.With("entry", "lobby")),
		WithProgress(func(step Step) { steps = append(steps, step) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	want := []Step{StepConnecting, StepFetching, StepPinging}
	if fmt.Sprint(steps) != fmt.Sprint(want) {
		t.Errorf("steps are %v, want %v", steps, want)
	}

	for _, line := range []string{"entry=lobby", "from=Handshaking to=Status", "received pong"} {
		if !strings.Contains(logs.String(), line) {
			t.Errorf("logs lack %q:\n%s", line, logs.String())
		}
	}
}

func TestStateAndStepNames(t *testing.T) {
	var tests = []struct {
		got, want string
	}{
		{StateHandshaking.String(), "Handshaking"},
		{StateStatus.String(), "Status"},
		{State(9).String(), "State(9)"},
		{StepConnecting.String(), "Connecting..."},
		{StepFetching.String(), "Fetching status..."},
		{StepPinging.String(), "Pinging..."},
		{Step(9).String(), "Step(9)"},
	}

	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("got %q, want %q", test.got, test.want)
		}
	}
}

func TestQueryBadPong(t *testing.T) {
	endpoint := newFakeServer(t, func(c *fakeConn) {
		c.expectStatusRequest()
		c.sendStatus(vanillaStatus)
		readPacket(c.reader)
		packet, _ := encodePacket(pongResponseID, int64(42))
		c.socket.Write(packet)
	})

	_, err := Query(context.Background(), endpoint, WithTimeout(time.Second), WithPing())
	if !errors.Is(err, mcerrors.ErrProtocol) {
		t.Errorf("error = %v, want ErrProtocol", err)
	}
}

func TestQueryUnexpectedPacketID(t *testing.T) {
	endpoint := newFakeServer(t, func(c *fakeConn) {
		c.expectStatusRequest()
		packet, _ := encodePacket(0x01, vanillaStatus)
		c.socket.Write(packet)
	})

	_, err := Query(context.Background(), endpoint, WithTimeout(time.Second))
	if !errors.Is(err, mcerrors.ErrProtocol) {
		t.Errorf("error = %v, want ErrProtocol", err)
	}
}

func TestQueryMalformedDocument(t *testing.T) {
	closed := make(chan error, 1)
	endpoint := newFakeServer(t, func(c *fakeConn) {
		c.expectStatusRequest()
		c.sendStatus("not json")
		closed <- c.waitClosed(2 * time.Second)
	})

	_, err := Query(context.Background(), endpoint, WithTimeout(time.Second))
	if !errors.Is(err, mcerrors.ErrProtocol) {
		t.Errorf("error = %v, want ErrProtocol", err)
	}

	if err := <-closed; err != nil {
		t.Error(err)
	}
}

func TestQueryServerHangsUp(t *testing.T) {
	endpoint := newFakeServer(t, func(c *fakeConn) {
		c.expectStatusRequest()
	})

	_, err := Query(context.Background(), endpoint, WithTimeout(time.Second))
	if !errors.Is(err, mcerrors.ErrProtocol) {
		t.Errorf("error = %v, want ErrProtocol", err)
	}
}

func TestQueryTimeout(t *testing.T) {
	endpoint := newFakeServer(t, func(c *fakeConn) {
		c.expectStatusRequest()
		c.waitClosed(5 * time.Second)
	})

	start := time.Now()
	_, err := Query(context.Background(), endpoint, WithTimeout(200*time.Millisecond))
	elapsed := time.Since(start)

	if !errors.Is(err, mcerrors.ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}

	if errors.Is(err, mcerrors.ErrConnection) {
		t.Error("a timeout must not also be a connection error")
	}

	if elapsed > 2*time.Second {
		t.Errorf("query took %s", elapsed)
	}
}

func TestQueryCancelled(t *testing.T) {
	endpoint := newFakeServer(t, func(c *fakeConn) {
		c.expectStatusRequest()
		c.waitClosed(5 * time.Second)
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := Query(ctx, endpoint, WithTimeout(5*time.Second))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestQueryConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	_, err = Query(context.Background(), address.New("127.0.0.1", uint16(port)), WithTimeout(time.Second))
	if !errors.Is(err, mcerrors.ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
}

// TestQueryGoMC runs the query against a server built on an independent
// implementation of the framing.
func TestQueryGoMC(t *testing.T) {
	listener, err := mcnet.ListenMC("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	seen := make(chan string, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var (
			p                   pk.Packet
			protocol, intention pk.VarInt
			host                pk.String
			port                pk.UnsignedShort
		)

		if err := conn.ReadPacket(&p); err != nil {
			seen <- err.Error()
			return
		}
		if err := p.Scan(&protocol, &host, &port, &intention); err != nil {
			seen <- err.Error()
			return
		}
		seen <- fmt.Sprintf("%d %s %d %d", protocol, host, port, intention)

		if err := conn.ReadPacket(&p); err != nil || p.ID != 0x00 {
			return
		}

		document, _ := json.Marshal(map[string]any{
			"version":     map[string]any{"name": "1.21.8", "protocol": 772},
			"players":     map[string]any{"online": 7, "max": 50, "sample": []map[string]string{{"name": "Steve", "id": "8667ba71-b85a-4004-af54-457a9734eed7"}}},
			"description": map[string]any{"text": "Hello ", "extra": []any{map[string]any{"text": "world", "color": "gold"}}},
		})
		conn.WritePacket(pk.Marshal(0x00, pk.String(document)))
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	status, err := Query(context.Background(), address.New("127.0.0.1", uint16(port)), WithTimeout(time.Second))
	if err != nil {
		t.Fatal(err)
	}

	if got := <-seen; got != fmt.Sprintf("0 127.0.0.1 %d 1", port) {
		t.Errorf("server saw handshake %q", got)
	}

	if status.Players.Online != 7 || status.Players.Max != 50 {
		t.Errorf("players are %d/%d", status.Players.Online, status.Players.Max)
	}

	if status.Description.String() != "Hello world" {
		t.Errorf("description is %q", status.Description.String())
	}

	if status.Version.Protocol != 772 {
		t.Errorf("protocol is %d", status.Version.Protocol)
	}

	id, err := status.Players.Sample[0].UUID()
	if err != nil || id.String() != "8667ba71-b85a-4004-af54-457a9734eed7" {
		t.Errorf("sample id is %s, %v", id, err)
	}
}
