package instrument

import (
	"bufio"
	"fmt"
	"os"
)

// openUSBTMC opens a usbtmc character device. Each write is sent as one
// USBTMC message and the driver answers reads with the instrument's reply.
// Read deadlines apply when the node is pollable; otherwise the driver's
// own transfer timeout bounds every read.
func openUSBTMC(dev string, opts Options) (Session, error) {
	f, err := os.OpenFile(dev, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("usbtmc open %s: %w", dev, err)
	}
	return &streamSession{
		rw:          f,
		r:           bufio.NewReader(f),
		timeout:     opts.Timeout,
		setDeadline: f.SetReadDeadline,
	}, nil
}
