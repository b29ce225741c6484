package main

import (
	"fmt"
	"os"

	"github.com/roach88/ifuzz/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ifuzz: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
