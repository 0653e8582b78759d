package minecraft

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
)

type State int

const (
	StateHandshaking State = iota
	StateStatus
)

func (self State) String() string {
	names := []string{"Handshaking", "Status"}
	if self < 0 || int(self) >= len(names) {
		return fmt.Sprintf("State(%d)", int(self))
	}

	return names[self]
}

// Step is the part of a query in progress.
type Step int

const (
	StepConnecting Step = iota
	StepFetching
	StepPinging
)

func (self Step) String() string {
	switch self {
	case StepConnecting:
		return "Connecting..."
	case StepFetching:
		return "Fetching status..."
	case StepPinging:
		return "Pinging..."
	default:
		return fmt.Sprintf("Step(%d)", int(self))
	}
}

const (
	intentionID      = 0x00
	statusRequestID  = 0x00
	statusResponseID = 0x00
	pingRequestID    = 0x01
	pongResponseID   = 0x01

	// Servers answer status queries whatever protocol the client announces,
	// so there is no point in claiming a real one.
	statusProtocolVersion = 0
)

// varInt marks an integer field that goes on the wire as a VarInt.
type varInt uint32

// encodePacket serializes the packet id and fields and prefixes the result
// with its length.
func encodePacket(id int, contents ...any) ([]byte, error) {
	payload := make([]byte, 0)

	for i := range contents {
		switch v := contents[i].(type) {
		case varInt:
			payload = append(payload, writeVarInt(uint32(v))...)
		case State:
			payload = append(payload, writeVarInt(uint32(v))...)
		case string:
			bytes, err := writeString(v)
			if err != nil {
				return nil, err
			}
			payload = append(payload, bytes...)
		case uint16:
			payload = binary.BigEndian.AppendUint16(payload, v)
		case int64:
			payload = binary.BigEndian.AppendUint64(payload, uint64(v))
		default:
			return nil, fmt.Errorf("cannot encode field %d of type %T", i, v)
		}
	}

	payloadWithID := append(writeVarInt(uint32(id)), payload...)
	if len(payloadWithID) > MAX_PACKET_LEN {
		return nil, fmt.Errorf("packet of %d bytes exceeds the %d byte limit", len(payloadWithID), MAX_PACKET_LEN)
	}

	return append(writeVarInt(uint32(len(payloadWithID))), payloadWithID...), nil
}

// handshake is the intention packet that opens every connection.
type handshake struct {
	protocol int
	host     string
	port     uint16
	next     State
}

func (self handshake) bytes() ([]byte, error) {
	return encodePacket(intentionID, varInt(self.protocol), self.host, self.port, self.next)
}

func statusRequest() ([]byte, error) {
	return encodePacket(statusRequestID)
}

func pingRequest(payload int64) ([]byte, error) {
	return encodePacket(pingRequestID, payload)
}

// readPacket reads one length-prefixed packet and splits off its id.
func readPacket(reader *bufio.Reader) (int, []byte, error) {
	length, err := readVarInt(reader)
	if err != nil {
		if err == io.EOF {
			return 0, nil, fmt.Errorf("%w: server closed the connection without answering", mcerrors.ErrProtocol)
		}
		return 0, nil, err
	}

	if length == 0 {
		return 0, nil, fmt.Errorf("%w: empty packet", mcerrors.ErrProtocol)
	}

	if length > MAX_PACKET_LEN {
		return 0, nil, fmt.Errorf("%w: declared packet length %d exceeds %d", mcerrors.ErrProtocol, length, MAX_PACKET_LEN)
	}

	data, err := readFull(reader, int(length))
	if err != nil {
		return 0, nil, err
	}

	id, sz, err := readVarIntFromBuff(data)
	if err != nil {
		return 0, nil, fmt.Errorf("reading packet id: %w", err)
	}

	return int(id), data[sz:], nil
}

// parseStatusResponse checks the packet id and extracts the JSON document.
func parseStatusResponse(id int, data []byte) (string, error) {
	if id != statusResponseID {
		return "", fmt.Errorf("%w: unexpected packet ID 0x%02x", mcerrors.ErrProtocol, id)
	}

	document, _, err := readString(data)
	if err != nil {
		return "", err
	}

	return document, nil
}

func parsePong(id int, data []byte) (int64, error) {
	if id != pongResponseID {
		return 0, fmt.Errorf("%w: unexpected packet ID 0x%02x", mcerrors.ErrProtocol, id)
	}

	m, err := readFromBuffer(data, factoryPair{"payload", longFactory})
	if err != nil {
		return 0, err
	}

	return m["payload"].(int64), nil
}
