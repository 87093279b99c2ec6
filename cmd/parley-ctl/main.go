package main

import (
	"fmt"
	"os"

	cli "github.com/spf13/pflag"

	"parley/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	cli.Parse()

	cmd := "wake"
	if args := cli.Args(); len(args) > 0 {
		cmd = args[0]
	}

	resp, err := ipc.Send(*socket, cmd)
	if err != nil {
		fmt.Println("parley-daemon not running:", err)
		os.Exit(1)
	}
	if !resp.Ok {
		fmt.Println("error:", resp.Error)
		os.Exit(1)
	}
	if resp.State != "" {
		fmt.Println(resp.State)
	}
}
