package instrument

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrUnsupportedResource is returned for resource strings no transport can open
var ErrUnsupportedResource = errors.New("unsupported resource")

// DefaultSocketPort is the raw SCPI port used when a TCPIP resource names none
const DefaultSocketPort = "5555"

const usbtmcDevDir = "/dev/"

// Kind is the transport behind a resource
type Kind int

const (
	KindSocket Kind = iota
	KindSerial
	KindUSBTMC
)

func (k Kind) String() string {
	switch k {
	case KindSocket:
		return "socket"
	case KindSerial:
		return "serial"
	case KindUSBTMC:
		return "usbtmc"
	default:
		return "unknown"
	}
}

// Resource is a parsed VISA-style resource string
type Resource struct {
	Kind    Kind
	Address string // host:port for sockets, device path otherwise
}

// ParseResource understands the resource strings a bench usually hands out:
//
//	TCPIP0::192.168.1.20::5025::SOCKET
//	TCPIP0::192.168.1.20::INSTR
//	192.168.1.20:5555
//	ASRL/dev/ttyUSB0::INSTR
//	USBTMC/dev/usbtmc0
//	USB0::0x1AB1::0x04CE::DS1ZA123456789::INSTR
//
// USB resources go through the Linux usbtmc driver. USB<n>::...::INSTR maps
// to /dev/usbtmc<n>; name the node with USBTMC<dev> when several instruments
// are attached.
func ParseResource(s string) (Resource, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)

	switch {
	case strings.HasPrefix(upper, "TCPIP"):
		parts := strings.Split(s, "::")
		if len(parts) < 2 || parts[1] == "" {
			return Resource{}, fmt.Errorf("%w: %q has no host", ErrUnsupportedResource, s)
		}
		host := parts[1]
		port := DefaultSocketPort
		if len(parts) == 4 && strings.EqualFold(parts[3], "SOCKET") {
			port = parts[2]
		} else if len(parts) > 2 && !strings.EqualFold(parts[len(parts)-1], "INSTR") {
			return Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedResource, s)
		}
		return Resource{Kind: KindSocket, Address: net.JoinHostPort(host, port)}, nil

	case strings.HasPrefix(upper, "USBTMC"):
		dev := s[len("USBTMC"):]
		if i := strings.Index(dev, "::"); i >= 0 {
			dev = dev[:i]
		}
		if dev == "" {
			return Resource{}, fmt.Errorf("%w: %q has no device", ErrUnsupportedResource, s)
		}
		return Resource{Kind: KindUSBTMC, Address: dev}, nil

	case strings.HasPrefix(upper, "USB"):
		parts := strings.Split(s, "::")
		if len(parts) < 4 || !strings.EqualFold(parts[len(parts)-1], "INSTR") {
			return Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedResource, s)
		}
		board := parts[0][len("USB"):]
		if board == "" {
			board = "0"
		}
		if _, err := strconv.ParseUint(board, 10, 8); err != nil {
			return Resource{}, fmt.Errorf("%w: %q has a bad board number", ErrUnsupportedResource, s)
		}
		return Resource{Kind: KindUSBTMC, Address: usbtmcDevDir + "usbtmc" + board}, nil

	case strings.HasPrefix(upper, "ASRL"):
		dev := s[len("ASRL"):]
		if i := strings.Index(dev, "::"); i >= 0 {
			dev = dev[:i]
		}
		if dev == "" {
			return Resource{}, fmt.Errorf("%w: %q has no device", ErrUnsupportedResource, s)
		}
		return Resource{Kind: KindSerial, Address: dev}, nil
	}

	if host, port, err := net.SplitHostPort(s); err == nil && host != "" && port != "" {
		return Resource{Kind: KindSocket, Address: s}, nil
	}

	return Resource{}, fmt.Errorf("%w: %q", ErrUnsupportedResource, s)
}
