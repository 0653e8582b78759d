package minecraft

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/keyboard-slayer/mcstatus/internal/address"
	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
)

// fakeServer is a status-only server that hands each connection to handle.
type fakeServer struct {
	t      *testing.T
	socket net.Listener
	handle func(c *fakeConn)
}

type fakeConn struct {
	t      *testing.T
	socket net.Conn
	reader *bufio.Reader
}

func newFakeServer(t *testing.T, handle func(c *fakeConn)) address.Endpoint {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	serv := &fakeServer{t: t, socket: listener, handle: handle}
	t.Cleanup(func() { listener.Close() })
	go serv.serve()

	port := listener.Addr().(*net.TCPAddr).Port
	return address.New("127.0.0.1", uint16(port))
}

func (self *fakeServer) serve() {
	for {
		conn, err := self.socket.Accept()
		if err != nil {
			return
		}

		go func() {
			defer conn.Close()
			self.handle(&fakeConn{t: self.t, socket: conn, reader: bufio.NewReader(conn)})
		}()
	}
}

// Handshake field decoders for the fake server.

func intFactory(buffer []byte) ([]byte, any, error) {
	r, sz, err := readVarIntFromBuff(buffer)
	if err != nil {
		return nil, nil, err
	}

	return buffer[sz:], r, nil
}

func ushortFactory(buffer []byte) ([]byte, any, error) {
	if len(buffer) < 2 {
		return nil, nil, fmt.Errorf("%w: unexpected end of buffer while reading unsigned short", mcerrors.ErrProtocol)
	}

	return buffer[2:], binary.BigEndian.Uint16(buffer), nil
}

// expectStatusRequest consumes the handshake and status request and checks
// they carry what every status query must carry.
func (self *fakeConn) expectStatusRequest() error {
	id, data, err := readPacket(self.reader)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	if id != intentionID {
		return fmt.Errorf("handshake has id %d", id)
	}

	m, err := readFromBuffer(data,
		factoryPair{"protocol", intFactory},
		factoryPair{"host", bytesFactory},
		factoryPair{"port", ushortFactory},
		factoryPair{"intent", intFactory},
	)
	if err != nil {
		return err
	}

	if m["protocol"].(uint32) != statusProtocolVersion {
		return fmt.Errorf("handshake announces protocol %d", m["protocol"])
	}

	if State(m["intent"].(uint32)) != StateStatus {
		return fmt.Errorf("handshake asks for state %d", m["intent"])
	}

	id, data, err = readPacket(self.reader)
	if err != nil {
		return fmt.Errorf("status request: %w", err)
	}

	if id != statusRequestID || len(data) != 0 {
		return fmt.Errorf("status request has id %d and %d body bytes", id, len(data))
	}

	return nil
}

// sendChunked writes b in pieces of at most size bytes.
func (self *fakeConn) sendChunked(b []byte, size int) error {
	for len(b) > 0 {
		n := min(size, len(b))
		if _, err := self.socket.Write(b[:n]); err != nil {
			return err
		}
		b = b[n:]
		time.Sleep(time.Millisecond)
	}

	return nil
}

func (self *fakeConn) sendStatus(document string) error {
	packet, err := encodePacket(statusResponseID, document)
	if err != nil {
		return err
	}

	_, err = self.socket.Write(packet)
	return err
}

func (self *fakeConn) answerPing() error {
	id, data, err := readPacket(self.reader)
	if err != nil {
		return err
	}

	if id != pingRequestID {
		return fmt.Errorf("ping has id %d", id)
	}

	payload, err := parsePong(pongResponseID, data)
	if err != nil {
		return err
	}

	packet, err := encodePacket(pongResponseID, payload)
	if err != nil {
		return err
	}

	_, err = self.socket.Write(packet)
	return err
}

// waitClosed reports whether the client hung up within timeout.
func (self *fakeConn) waitClosed(timeout time.Duration) error {
	self.socket.SetReadDeadline(time.Now().Add(timeout))

	buf := make([]byte, 1)
	_, err := self.reader.Read(buf)
	if errors.Is(err, io.EOF) {
		return nil
	}

	return fmt.Errorf("connection still open: %v", err)
}
