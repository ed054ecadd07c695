// Package main is a development utility for generating an API key in the
// console's format. It prints the raw key and a ready-to-run SQL UPDATE so
// developers can seed a usable key in a local database without running the
// full registration flow. Do not use generated keys in production; regenerate
// through the API instead.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func main() {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		log.Fatal(err)
	}

	fullKey := fmt.Sprintf("pak_%s", base64.RawURLEncoding.EncodeToString(randomBytes))

	fmt.Println("==========================================================")
	fmt.Println("API Key Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nFull Key: %s\n", fullKey)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL Update:")
	fmt.Println("==========================================================")
	fmt.Printf(`
UPDATE users
SET api_key = '%s',
    api_key_created_at = NOW()
WHERE email = 'admin@dev.local';
`, fullKey)
	fmt.Println("\n==========================================================")
	fmt.Printf("Authorization Header: Bearer %s\n", fullKey)
	fmt.Println("==========================================================")
}
