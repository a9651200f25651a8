package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/moovies/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "moovies: %v\n", err)
		os.Exit(1)
	}
}
