// Command changeid reassigns a node's id: OLD NEW.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/cvra/can-bootloader-go/executor"
	"github.com/cvra/can-bootloader-go/internal/cliopts"
	"github.com/cvra/can-bootloader-go/ops"
)

func main() {
	fs := flag.NewFlagSet("changeid", flag.ExitOnError)
	conn := cliopts.Register(fs)
	fs.Parse(os.Args[1:])

	if err := conn.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "changeid: usage: changeid [flags] OLD NEW")
		os.Exit(2)
	}

	oldID, err1 := strconv.ParseUint(fs.Arg(0), 0, 8)
	newID, err2 := strconv.ParseUint(fs.Arg(1), 0, 8)
	if err1 != nil || err2 != nil {
		fmt.Fprintln(os.Stderr, "changeid: OLD and NEW must be node ids")
		os.Exit(2)
	}

	t, err := conn.Connect()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer t.Close()

	if err := ops.ChangeID(executor.New(t, 0), uint8(oldID), uint8(newID)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
