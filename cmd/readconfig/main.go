// Command readconfig reads and prints the persisted config map from a set
// of nodes, or every node answering a ping sweep with --all.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/cvra/can-bootloader-go/executor"
	"github.com/cvra/can-bootloader-go/internal/cliopts"
	"github.com/cvra/can-bootloader-go/ops"
)

func main() {
	fs := flag.NewFlagSet("readconfig", flag.ExitOnError)
	conn := cliopts.Register(fs)
	all := fs.Bool("all", false, "read from every node answering a ping scan")
	fs.Parse(os.Args[1:])

	if err := conn.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	t, err := conn.Connect()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer t.Close()

	exec := executor.New(t, 0)

	destinations, err := parseNodeIDs(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *all {
		destinations, err = ops.PingScan(exec)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if len(destinations) == 0 {
		fmt.Fprintln(os.Stderr, "readconfig: at least one node id is required unless --all is given")
		os.Exit(2)
	}

	configs, err := ops.ReadConfig(exec, destinations)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for id, cfg := range configs {
		enc.Encode(map[string]any{"node": id, "config": cfg})
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
