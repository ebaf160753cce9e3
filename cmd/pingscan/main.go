// Command pingscan broadcasts a ping and reports which node ids answered.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cvra/can-bootloader-go/executor"
	"github.com/cvra/can-bootloader-go/internal/cliopts"
	"github.com/cvra/can-bootloader-go/ops"
)

func main() {
	fs := flag.NewFlagSet("pingscan", flag.ExitOnError)
	conn := cliopts.Register(fs)
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

	online, err := ops.PingScan(executor.New(t, 0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	for _, id := range online {
		fmt.Println(id)
	}
}
