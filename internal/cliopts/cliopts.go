// Package cliopts implements the connection flag surface shared by every
// command-line tool: pick a serial device or a socketcan interface
// (mutually exclusive), optionally log raw traffic to a pcap file, and
// widen the receive timeout for boards with slow page erases.
package cliopts

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cvra/can-bootloader-go/internal/logging"
	"github.com/cvra/can-bootloader-go/transport"
	"github.com/cvra/can-bootloader-go/transport/pcaplog"

	_ "github.com/cvra/can-bootloader-go/transport/serialbridge"
	_ "github.com/cvra/can-bootloader-go/transport/slcan"
	_ "github.com/cvra/can-bootloader-go/transport/socketcan"
	_ "github.com/cvra/can-bootloader-go/transport/virtualcan"
)

// Short receive timeout for ordinary command/answer round trips; long
// enough for boards whose page erase genuinely takes seconds when
// --large-pages is given.
const (
	defaultTimeout    = 500 * time.Millisecond
	largePagesTimeout = 5 * time.Second
)

// Connection holds the parsed, shared connection flags.
type Connection struct {
	port       string
	iface      string
	pcapFile   string
	largePages bool
	verbosity  int
}

// Register adds the shared connection flags to fs. Call before fs.Parse.
func Register(fs *flag.FlagSet) *Connection {
	c := &Connection{}
	fs.StringVar(&c.port, "p", "", "serial device, e.g. /dev/ttyUSB0")
	fs.StringVar(&c.iface, "i", "", "socketcan interface, e.g. can0")
	fs.StringVar(&c.pcapFile, "pcap", "", "record raw CAN traffic to this pcap file")
	fs.BoolVar(&c.largePages, "large-pages", false, "widen the receive timeout for boards with slow page erases")
	fs.IntVar(&c.verbosity, "v", 0, "verbosity level (0=warn, 1=info, 2 or more=debug)")
	return c
}

// Validate checks the flag combination is legal and configures logging.
// Call after fs.Parse.
func (c *Connection) Validate() error {
	logging.Setup(c.verbosity)
	if c.port == "" && c.iface == "" {
		return ErrNoConnectionSpecified
	}
	if c.port != "" && c.iface != "" {
		return ErrConflictingConnection
	}
	return nil
}

// Connect opens the transport described by the flags, wrapping it in a
// pcap logger when --pcap was given.
func (c *Connection) Connect() (transport.Transport, error) {
	timeout := defaultTimeout
	if c.largePages {
		timeout = largePagesTimeout
	}

	var (
		t   transport.Transport
		err error
	)
	switch {
	case c.iface != "":
		t, err = transport.New("socketcan", c.iface, timeout)
	case c.port != "":
		t, err = transport.New("serialbridge", c.port, timeout)
	default:
		return nil, ErrNoConnectionSpecified
	}
	if err != nil {
		return nil, fmt.Errorf("cliopts: connect: %w", err)
	}

	if c.pcapFile == "" {
		return t, nil
	}
	f, err := os.Create(c.pcapFile)
	if err != nil {
		return nil, fmt.Errorf("cliopts: open pcap file: %w", err)
	}
	return pcaplog.New(t, f)
}
