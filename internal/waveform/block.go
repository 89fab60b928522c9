package waveform

import (
	"errors"
	"fmt"
)

// ErrMalformedBlock is returned when a binary block response cannot be framed
var ErrMalformedBlock = errors.New("malformed block")

// DecodeBlock strips the definite-length block framing from a raw waveform
// transfer. The buffer looks like "#<n><n length digits><data><terminator>";
// the first n+2 bytes and the final terminator byte are removed.
func DecodeBlock(raw []byte) ([]byte, error) {
	if len(raw) < 2 || raw[0] != '#' {
		return nil, fmt.Errorf("%w: missing '#' header", ErrMalformedBlock)
	}
	if raw[1] < '0' || raw[1] > '9' {
		return nil, fmt.Errorf("%w: invalid length digit %q", ErrMalformedBlock, raw[1])
	}

	headerLen := int(raw[1]-'0') + 2
	if len(raw) < headerLen+1 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than header and terminator", ErrMalformedBlock, len(raw))
	}

	return raw[headerLen : len(raw)-1], nil
}

// BlockLength parses the declared payload length from a block header.
// header must hold '#', the length digit and the length digits themselves.
func BlockLength(header []byte) (int, error) {
	if len(header) < 2 || header[0] != '#' {
		return 0, fmt.Errorf("%w: missing '#' header", ErrMalformedBlock)
	}
	if header[1] < '0' || header[1] > '9' {
		return 0, fmt.Errorf("%w: invalid length digit %q", ErrMalformedBlock, header[1])
	}
	n := int(header[1] - '0')
	if len(header) < n+2 {
		return 0, fmt.Errorf("%w: truncated length field", ErrMalformedBlock)
	}

	length := 0
	for _, c := range header[2 : n+2] {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: non-digit %q in length field", ErrMalformedBlock, c)
		}
		length = length*10 + int(c-'0')
	}
	return length, nil
}
