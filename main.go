package main

import (
	"fmt"
	"os"

	"github.com/YixingZhengAu/JobSeeker/cmd"

	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
