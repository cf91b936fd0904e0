package main

import (
	"fmt"
	"os"

	"gitdb/cmd/gitdb/commands"
	"gitdb/pkg/types"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", types.Code(err), err)
		os.Exit(1)
	}
}
