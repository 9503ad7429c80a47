package payment

import (
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
)

// RPCEndpointForCluster returns the public RPC endpoint for a cluster name.
// Accepts plain names, CAIP-2 identifiers and common aliases.
func RPCEndpointForCluster(cluster string) string {
	c := strings.TrimPrefix(strings.TrimSpace(cluster), "solana:")

	switch c {
	// CAIP-2 genesis hashes
	case "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp":
		return rpc.MainNetBeta_RPC
	case "EtWTRABZaYq6iMfeYKouRu166VU2xqa1":
		return rpc.DevNet_RPC
	case "4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z":
		return rpc.TestNet_RPC
	}

	switch strings.ToLower(c) {
	case "mainnet-beta", "mainnet":
		return rpc.MainNetBeta_RPC
	case "testnet":
		return rpc.TestNet_RPC
	case "devnet", "":
		return rpc.DevNet_RPC
	default:
		return rpc.DevNet_RPC
	}
}
