package main

import (
	"github.com/joho/godotenv"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/cli"
)

func main() {
	// Optional .env for local development; config and real env still win.
	_ = godotenv.Load()

	cli.Execute()
}
