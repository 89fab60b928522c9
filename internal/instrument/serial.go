package instrument

import (
	"bufio"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// openSerial opens an ASRL resource. go.bug.st/serial applies the read
// timeout to every Read, so no per-call deadline is needed.
func openSerial(dev string, opts Options) (Session, error) {
	baud := opts.BaudRate
	if baud <= 0 {
		baud = DefaultOptions().BaudRate
	}

	port, err := serial.Open(dev, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", dev, err)
	}
	if err := port.SetReadTimeout(opts.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial timeout %s: %w", dev, err)
	}

	rw := timeoutReader{port}
	return &streamSession{
		rw:      rw,
		r:       bufio.NewReader(rw),
		timeout: opts.Timeout,
	}, nil
}

// timeoutReader turns the (0, nil) read go.bug.st/serial reports on timeout
// into ErrTimeout.
type timeoutReader struct {
	io.ReadWriteCloser
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.ReadWriteCloser.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, ErrTimeout
	}
	return n, err
}

// ListPorts returns the serial ports visible to the host
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
