package main

import (
	"fmt"
	"os"

	"github.com/fergusinlondon/actorstage/cmd/bank/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
