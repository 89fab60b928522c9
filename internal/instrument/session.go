package instrument

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/RMahshie/powersweep/internal/waveform"
	"github.com/rs/zerolog/log"
)

// ErrTimeout is returned when the instrument does not answer within the read timeout
var ErrTimeout = errors.New("instrument read timeout")

// Session is an open connection to a bench instrument speaking plain-text
// commands with binary block responses
type Session interface {
	Write(cmd string) error
	Query(cmd string) (string, error)
	ReadBlock() ([]byte, error)
	Close() error
}

// Options controls how a session is opened
type Options struct {
	Timeout  time.Duration
	BaudRate int
}

// DefaultOptions returns a 10 second read timeout and 115200 baud
func DefaultOptions() Options {
	return Options{
		Timeout:  10 * time.Second,
		BaudRate: 115200,
	}
}

// Open connects to the instrument named by a resource string
func Open(ctx context.Context, resource string, opts Options) (Session, error) {
	res, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}

	log.Debug().Str("resource", resource).Str("kind", res.Kind.String()).Str("address", res.Address).Msg("Opening instrument session")

	switch res.Kind {
	case KindSocket:
		d := net.Dialer{Timeout: opts.Timeout}
		c, err := d.DialContext(ctx, "tcp", res.Address)
		if err != nil {
			return nil, fmt.Errorf("connect failed: %w", err)
		}
		return NewConnSession(c, opts.Timeout), nil
	case KindSerial:
		return openSerial(res.Address, opts)
	case KindUSBTMC:
		return openUSBTMC(res.Address, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedResource, resource)
	}
}

// streamSession frames commands and responses over any byte stream.
// setDeadline is nil for transports whose timeout is configured up front.
type streamSession struct {
	rw          io.ReadWriteCloser
	r           *bufio.Reader
	timeout     time.Duration
	setDeadline func(time.Time) error
}

// NewConnSession wraps an established connection. Exposed for tests and
// tunnels that hand over a ready net.Conn.
func NewConnSession(c net.Conn, timeout time.Duration) Session {
	return &streamSession{
		rw:          c,
		r:           bufio.NewReader(c),
		timeout:     timeout,
		setDeadline: c.SetReadDeadline,
	}
}

func (s *streamSession) Close() error {
	return s.rw.Close()
}

func (s *streamSession) Write(cmd string) error {
	log.Debug().Str("cmd", cmd).Msg("SCPI write")
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	if _, err := io.WriteString(s.rw, cmd); err != nil {
		return fmt.Errorf("write %q: %w", strings.TrimSpace(cmd), err)
	}
	return nil
}

func (s *streamSession) Query(cmd string) (string, error) {
	if err := s.Write(cmd); err != nil {
		return "", err
	}
	s.applyReadDeadline()
	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("query %q: %w", cmd, s.readErr(err))
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadBlock reads one complete definite-length block, header and terminator
// included. The declared length decides how many payload bytes follow, so
// payload bytes equal to '\n' do not end the read early.
func (s *streamSession) ReadBlock() ([]byte, error) {
	s.applyReadDeadline()

	head := make([]byte, 2)
	if _, err := io.ReadFull(s.r, head); err != nil {
		return nil, fmt.Errorf("read block header: %w", s.readErr(err))
	}
	if head[0] != '#' || head[1] < '0' || head[1] > '9' {
		return nil, fmt.Errorf("%w: unexpected header %q", waveform.ErrMalformedBlock, head)
	}

	n := int(head[1] - '0')
	if n == 0 {
		// Indefinite length: the payload runs until the terminator.
		rest, err := s.r.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("read block: %w", s.readErr(err))
		}
		return append(head, rest...), nil
	}

	digits := make([]byte, n)
	if _, err := io.ReadFull(s.r, digits); err != nil {
		return nil, fmt.Errorf("read block length: %w", s.readErr(err))
	}
	header := append(head, digits...)
	length, err := waveform.BlockLength(header)
	if err != nil {
		return nil, err
	}

	// payload plus the trailing terminator byte
	body := make([]byte, length+1)
	if _, err := io.ReadFull(s.r, body); err != nil {
		return nil, fmt.Errorf("read block payload (%d bytes): %w", length, s.readErr(err))
	}

	log.Debug().Int("bytes", length).Msg("SCPI block read")
	return append(header, body...), nil
}

func (s *streamSession) applyReadDeadline() {
	if s.setDeadline != nil && s.timeout > 0 {
		_ = s.setDeadline(time.Now().Add(s.timeout))
	}
}

func (s *streamSession) readErr(err error) error {
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
