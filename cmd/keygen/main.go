package main

import (
	"fmt"
	"os"

	"ai_chat/internal/storage"
)

// Prints a fresh base64 AES-256 key for CREDENTIAL_ENCRYPTION_KEY.
func main() {
	key, err := storage.GenerateKey(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(key)
}
