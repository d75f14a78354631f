package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/technosupport/ts-licensing/internal/auth"
)

// hasher issues a brand API key and the argon2id hash to store in the
// catalog file. The key itself is printed once and never stored.
func main() {
	brand := flag.String("brand", "", "Brand slug the key is issued for")
	key := flag.String("key", "", "Hash an existing key instead of generating one")
	flag.Parse()

	apiKey := *key
	if apiKey == "" {
		if *brand == "" {
			fmt.Fprintln(os.Stderr, "usage: hasher -brand <slug> | -key <slug>.<secret>")
			os.Exit(2)
		}
		var err error
		apiKey, err = auth.GenerateAPIKey(*brand)
		if err != nil {
			log.Fatalf("Failed to generate API key: %v", err)
		}
	} else if _, ok := auth.SplitAPIKey(apiKey); !ok {
		log.Fatalf("Key must have the form <slug>.<secret>")
	}

	hash, err := auth.HashAPIKey(apiKey)
	if err != nil {
		log.Fatalf("Failed to hash API key: %v", err)
	}
	fmt.Printf("api_key:      %s\n", apiKey)
	fmt.Printf("api_key_hash: %s\n", hash)
}
