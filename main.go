package main

import (
	"github.com/joho/godotenv"

	"github.com/x402-labs/inference-gateway/internal/cmd"
)

func main() {
	// Load .env if present; provider API keys and the settlement key
	// are typically supplied this way in development
	_ = godotenv.Load()

	cmd.Execute()
}
