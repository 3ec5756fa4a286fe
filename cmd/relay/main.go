package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/Backland-Labs/relay/internal/cli"
)

func main() {
	// Best-effort: a missing .env file is fine
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
