package main

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	factoryFlag := flag.String("factory", "", "proxy factory contract address (0x...)")
	initCodeHashFlag := flag.String("init-code-hash", "", "keccak256 of the proxy's init code (0x...)")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: go run ./cmd/inspector [--factory 0x...] [--init-code-hash 0x...] <private_key_with_0x>")
		os.Exit(1)
	}

	pkHex := args[0]

	// 1. Validate Private Key
	key, err := crypto.HexToECDSA(pkHex[2:]) // remove 0x
	if err != nil {
		log.Fatalf("❌ Invalid Private Key: %v", err)
	}

	// 2. Derive EOA Address
	pubKey := key.Public()
	eoaAddr := crypto.PubkeyToAddress(*pubKey.(*ecdsa.PublicKey))
	fmt.Printf("\n✅ Private Key is Valid!\n")
	fmt.Printf("🔑 EOA Address (MetaMask):   %s\n", eoaAddr.Hex())

	// 3. Derive the counterfactual proxy wallet address via EIP-1014 CREATE2,
	// the same formula internal/service uses, instead of a third-party SDK.
	if *factoryFlag == "" || *initCodeHashFlag == "" {
		fmt.Println("\nℹ️  Pass --factory and --init-code-hash to also derive the proxy wallet address.")
		return
	}
	factory := common.HexToAddress(*factoryFlag)
	initCodeHash := common.HexToHash(*initCodeHashFlag)
	proxyAddr := deriveProxyAddress(eoaAddr, factory, initCodeHash)
	fmt.Printf("🏭 Proxy Address: %s\n", proxyAddr.Hex())
	fmt.Println("\n👇 COPY THIS TO config.yaml 👇")
	fmt.Printf("proxy_address: \"%s\"\n", proxyAddr.Hex())
}

// deriveProxyAddress mirrors internal/service's CREATE2 derivation:
// keccak256(0xff ++ factory ++ salt ++ initCodeHash)[12:], salted on owner.
func deriveProxyAddress(owner, factory common.Address, initCodeHash common.Hash) common.Address {
	salt := common.LeftPadBytes(owner.Bytes(), 32)
	buf := make([]byte, 0, 1+20+32+32)
	buf = append(buf, 0xff)
	buf = append(buf, factory.Bytes()...)
	buf = append(buf, salt...)
	buf = append(buf, initCodeHash.Bytes()...)
	hash := crypto.Keccak256(buf)
	return common.BytesToAddress(hash[12:])
}
