package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/qchat/internal/daemon"
	"github.com/matheus3301/qchat/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	socketFlag := flag.String("socket", "", "socket path (defaults to the profile directory)")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Profile: name, SocketPath: *socketFlag}),
	)

	app.Run()
}
