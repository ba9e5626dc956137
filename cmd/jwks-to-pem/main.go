// Command jwks-to-pem prints an identity provider's signing key as PEM, ready
// to be used as JWT_SECRET for RS* and ES* access tokens.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"matchday/internal/util"
)

func main() {
	url := flag.String("url", "http://127.0.0.1:54321/auth/v1/.well-known/jwks.json", "JWKS endpoint")
	kid := flag.String("kid", "", "key id to export (default: first signing key)")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(*url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching JWKS: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Error fetching JWKS: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	var jwks util.JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing JWKS: %v\n", err)
		os.Exit(1)
	}

	key, err := jwks.SigningKey(*kid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	pemKey, err := key.PEM()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding key %s: %v\n", key.Kid, err)
		os.Exit(1)
	}
	fmt.Print(pemKey)
}
