package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Enough for HS256, use 48 or 64 for HS384 and HS512
const defaultSecretKeyBytesLen = 32

func main() {
	n := pflag.IntP("bytes", "n", defaultSecretKeyBytesLen, "Secret key length in bytes")
	pflag.Parse()

	secret, err := generate(*n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(secret)
}

func generate(n int) (string, error) {
	if n < defaultSecretKeyBytesLen {
		return "", fmt.Errorf("secret key has to be at least %d bytes long, got %d", defaultSecretKeyBytesLen, n)
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
