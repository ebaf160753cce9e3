// Command writeconfig merges a JSON object into the persisted config of a
// set of nodes. It refuses to touch the ID key; use changeid for that.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/cvra/can-bootloader-go/bootcmd"
	"github.com/cvra/can-bootloader-go/executor"
	"github.com/cvra/can-bootloader-go/internal/cliopts"
	"github.com/cvra/can-bootloader-go/ops"
)

func main() {
	fs := flag.NewFlagSet("writeconfig", flag.ExitOnError)
	conn := cliopts.Register(fs)
	configJSON := fs.String("c", "", "config object to merge, as JSON")
	fs.Parse(os.Args[1:])

	if err := conn.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *configJSON == "" {
		fmt.Fprintln(os.Stderr, "writeconfig: -c is required")
		os.Exit(2)
	}

	var config map[string]any
	if err := json.Unmarshal([]byte(*configJSON), &config); err != nil {
		fmt.Fprintf(os.Stderr, "writeconfig: invalid JSON: %v\n", err)
		os.Exit(2)
	}

	destinations, err := parseNodeIDs(fs.Args())
	if err != nil || len(destinations) == 0 {
		fmt.Fprintln(os.Stderr, "writeconfig: at least one node id is required")
		os.Exit(2)
	}

	// Refuse an ID key before touching the bus at all: node id changes only
	// ever happen through changeid, which addresses the old and new id
	// explicitly.
	if _, hasID := config[bootcmd.ConfigKeyNodeID]; hasID {
		fmt.Fprintln(os.Stderr, ops.ErrConfigRefusesNodeID)
		os.Exit(2)
	}

	t, err := conn.Connect()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer t.Close()

	if err := ops.WriteConfig(executor.New(t, 0), config, destinations); err != nil {
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
