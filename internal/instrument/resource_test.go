package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResource(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		want     Resource
	}{
		{
			name:     "tcpip socket",
			resource: "TCPIP0::192.168.1.20::5025::SOCKET",
			want:     Resource{Kind: KindSocket, Address: "192.168.1.20:5025"},
		},
		{
			name:     "tcpip instr falls back to raw socket port",
			resource: "TCPIP0::192.168.1.20::INSTR",
			want:     Resource{Kind: KindSocket, Address: "192.168.1.20:5555"},
		},
		{
			name:     "tcpip vxi11 style device name",
			resource: "TCPIP::scope.lab::inst0::INSTR",
			want:     Resource{Kind: KindSocket, Address: "scope.lab:5555"},
		},
		{
			name:     "tcpip host only",
			resource: "TCPIP::scope.lab",
			want:     Resource{Kind: KindSocket, Address: "scope.lab:5555"},
		},
		{
			name:     "lower case socket",
			resource: "tcpip0::10.0.0.5::5025::socket",
			want:     Resource{Kind: KindSocket, Address: "10.0.0.5:5025"},
		},
		{
			name:     "host and port",
			resource: "10.0.0.5:5025",
			want:     Resource{Kind: KindSocket, Address: "10.0.0.5:5025"},
		},
		{
			name:     "serial",
			resource: "ASRL/dev/ttyUSB0::INSTR",
			want:     Resource{Kind: KindSerial, Address: "/dev/ttyUSB0"},
		},
		{
			name:     "usbtmc device node",
			resource: "USBTMC/dev/usbtmc2",
			want:     Resource{Kind: KindUSBTMC, Address: "/dev/usbtmc2"},
		},
		{
			name:     "usb instr maps to the board's usbtmc node",
			resource: "USB0::0x1AB1::0x04CE::DS1ZA123456789::INSTR",
			want:     Resource{Kind: KindUSBTMC, Address: "/dev/usbtmc0"},
		},
		{
			name:     "usb instr second board",
			resource: "usb1::0x1AB1::0x04CE::DS1ZA123456789::0::instr",
			want:     Resource{Kind: KindUSBTMC, Address: "/dev/usbtmc1"},
		},
		{
			name:     "serial without suffix",
			resource: "ASRLCOM3",
			want:     Resource{Kind: KindSerial, Address: "COM3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResource(tt.resource)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResource_Unsupported(t *testing.T) {
	for _, resource := range []string{
		"",
		"GPIB0::7::INSTR",
		"USB0::0x1AB1::INSTR",
		"USB0::0x1AB1::0x04CE::DS1ZA123456789::RAW",
		"USBX::0x1AB1::0x04CE::DS1ZA123456789::INSTR",
		"USB-1::0x1AB1::0x04CE::DS1ZA123456789::INSTR",
		"USBTMC",
		"TCPIP0::",
		"TCPIP0::10.0.0.5::5025::HISLIP",
		"ASRL::INSTR",
		"scope.lab",
	} {
		t.Run(resource, func(t *testing.T) {
			_, err := ParseResource(resource)
			assert.ErrorIs(t, err, ErrUnsupportedResource)
		})
	}
}
