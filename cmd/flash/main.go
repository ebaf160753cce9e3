// Command flash writes a firmware binary to a fleet of bootloader nodes:
// online check, page-aligned erase, chunked write, config commit and CRC
// verification, with an optional jump to the flashed application.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/cvra/can-bootloader-go/executor"
	"github.com/cvra/can-bootloader-go/flash"
	"github.com/cvra/can-bootloader-go/internal/cliopts"
)

func main() {
	fs := flag.NewFlagSet("flash", flag.ExitOnError)
	conn := cliopts.Register(fs)
	binPath := fs.String("b", "", "firmware binary to flash")
	addrHex := fs.String("a", "", "base flash address, hex, e.g. 0x08004000")
	deviceClass := fs.String("c", "", "device class reported to the bootloader")
	run := fs.Bool("r", false, "jump to the application once verified")
	pageSize := fs.Uint("page-size", 2048, "flash page size in bytes")
	fs.Parse(os.Args[1:])

	if err := conn.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *binPath == "" || *addrHex == "" || *deviceClass == "" {
		fmt.Fprintln(os.Stderr, "flash: -b, -a and -c are required")
		os.Exit(2)
	}
	destinations, err := parseNodeIDs(fs.Args())
	if err != nil || len(destinations) == 0 {
		fmt.Fprintln(os.Stderr, "flash: at least one node id is required")
		os.Exit(2)
	}

	addr, err := strconv.ParseUint(*addrHex, 0, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flash: invalid address %q: %v\n", *addrHex, err)
		os.Exit(2)
	}

	binary, err := os.ReadFile(*binPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flash: read %s: %v\n", *binPath, err)
		os.Exit(2)
	}

	t, err := conn.Connect()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer t.Close()

	exec := executor.New(t, 0)
	pipeline := flash.New(exec, uint32(*pageSize), *deviceClass)
	// Bound the verify drain so a board that genuinely never answers ends
	// the tool rather than blocking it forever; the library itself leaves
	// this unlimited by default for callers that want to bound it
	// differently (see flash.Pipeline.VerifyMaxTicks).
	pipeline.VerifyMaxTicks = 2 * len(destinations)

	err = pipeline.Flash(uint32(addr), binary, destinations, *run)
	switch {
	case err == nil:
		log.Info("flash: all boards verified")
		os.Exit(0)
	case errors.Is(err, flash.ErrVerificationFailed):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func parseNodeIDs(args []string) ([]uint8, error) {
	ids := make([]uint8, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q: %w", a, err)
		}
		ids = append(ids, uint8(n))
	}
	return ids, nil
}
