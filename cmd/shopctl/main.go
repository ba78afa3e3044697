package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(productionBackend).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "shopctl:", err)
		os.Exit(1)
	}
}
