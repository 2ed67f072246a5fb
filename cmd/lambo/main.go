// Command lambo runs the reverse-proxy load balancer described by a YAML
// configuration bundle.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is a local-dev convenience only; a missing file is not an error.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
