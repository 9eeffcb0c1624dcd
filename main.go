package main

import (
	"fmt"
	"os"

	"github.com/texelworks/painterlink/cmd"
)

func main() {
	// When launched by the host application without arguments, run the bridge
	if len(os.Args) == 1 {
		os.Args = []string{os.Args[0], "serve"}
	}

	root := cmd.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
