package minecraft

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
)

const (
	SEGMENT_BITS = 0x7F
	CONTINUE_BIT = 0x80

	// A 32-bit VarInt never needs more than 5 bytes.
	MAX_VARINT_LEN = 5
	// Largest length a 3-byte VarInt can announce, which is what vanilla accepts.
	MAX_PACKET_LEN = 2097151
	MAX_STRING_LEN = MAX_PACKET_LEN
)

var errVarIntTooLong = fmt.Errorf("%w: varint too long", mcerrors.ErrProtocol)

func writeVarInt(value uint32) []byte {
	bytes := make([]byte, 0, MAX_VARINT_LEN)

	for {
		if (value & ^uint32(SEGMENT_BITS)) == 0 {
			bytes = append(bytes, byte(value))
			return bytes
		}

		bytes = append(bytes, byte((value&SEGMENT_BITS)|CONTINUE_BIT))
		value >>= 7
	}
}

// readVarIntFromBuff decodes a VarInt at the start of buff and returns it with
// the number of bytes it occupied.
func readVarIntFromBuff(buff []byte) (uint32, int, error) {
	var value uint32 = 0
	var pos int = 0
	var idx int = 0

	for {
		if idx >= len(buff) {
			return 0, 0, fmt.Errorf("%w: unexpected end of buffer while reading VarInt", mcerrors.ErrProtocol)
		}

		currentByte := buff[idx]
		idx += 1

		value |= uint32(currentByte&SEGMENT_BITS) << pos

		if (currentByte & CONTINUE_BIT) == 0 {
			break
		}

		pos += 7
		if idx >= MAX_VARINT_LEN {
			return 0, 0, errVarIntTooLong
		}
	}

	return value, idx, nil
}

// readVarInt decodes a VarInt straight off a stream. An EOF before the first
// byte is returned as is so callers can tell a closed stream from a torn one.
func readVarInt(reader io.ByteReader) (uint32, error) {
	var value uint32 = 0
	var pos int = 0
	var length int = 0

	for {
		currentByte, err := reader.ReadByte()
		if err != nil {
			if err == io.EOF && length > 0 {
				return 0, fmt.Errorf("%w: stream closed inside a VarInt", mcerrors.ErrProtocol)
			}
			return 0, err
		}
		length += 1

		value |= uint32(currentByte&SEGMENT_BITS) << pos

		if (currentByte & CONTINUE_BIT) == 0 {
			break
		}

		pos += 7
		if length >= MAX_VARINT_LEN {
			return 0, errVarIntTooLong
		}
	}

	return value, nil
}

func writeString(value string) ([]byte, error) {
	if len(value) > MAX_STRING_LEN {
		return nil, fmt.Errorf("string of %d bytes exceeds the %d byte limit", len(value), MAX_STRING_LEN)
	}

	return append(writeVarInt(uint32(len(value))), value...), nil
}

func readString(buff []byte) (string, int, error) {
	rest, value, err := bytesFactory(buff)
	if err != nil {
		return "", 0, err
	}

	return string(value.([]byte)), len(buff) - len(rest), nil
}

// readFull keeps reading until length bytes arrived. The transport is free to
// hand them over in as many pieces as it likes.
func readFull(reader io.Reader, length int) ([]byte, error) {
	data := make([]byte, length)
	received := 0

	for received < length {
		n, err := reader.Read(data[received:])
		received += n

		if received == length {
			break
		}

		if err == io.EOF {
			return nil, fmt.Errorf("%w: stream closed after %d of %d bytes", mcerrors.ErrProtocol, received, length)
		}

		if err != nil {
			return nil, err
		}
	}

	return data, nil
}

type factory func(buffer []byte) ([]byte, any, error)

type factoryPair struct {
	name    string
	factory factory
}

func bytesFactory(buffer []byte) ([]byte, any, error) {
	length, sz, err := readVarIntFromBuff(buffer)
	if err != nil {
		return nil, nil, err
	}

	if uint64(length) > uint64(len(buffer[sz:])) {
		return nil, nil, fmt.Errorf("%w: length %d is larger than the %d bytes left", mcerrors.ErrProtocol, length, len(buffer[sz:]))
	}

	end := sz + int(length)
	return buffer[end:], buffer[sz:end], nil
}

func longFactory(buffer []byte) ([]byte, any, error) {
	if len(buffer) < 8 {
		return nil, nil, fmt.Errorf("%w: unexpected end of buffer while reading long", mcerrors.ErrProtocol)
	}

	return buffer[8:], int64(binary.BigEndian.Uint64(buffer)), nil
}

func readFromBuffer(buffer []byte, pairs ...factoryPair) (map[string]any, error) {
	results := make(map[string]any)

	for _, p := range pairs {
		tmp, ret, err := p.factory(buffer)
		if err != nil {
			return map[string]any{}, fmt.Errorf("reading %s: %w", p.name, err)
		}

		results[p.name] = ret
		buffer = tmp
	}

	return results, nil
}
