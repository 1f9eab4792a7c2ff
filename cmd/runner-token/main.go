// Command runner-token mints a bearer token for a server started with
// RUNNER_JWT_SECRET. Paste the output into the editor plugin's settings.
//
//	RUNNER_JWT_SECRET=... runner-token -subject laptop -ttl 720h
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sakif/code-runner/internal/auth"
)

func main() {
	subject := flag.String("subject", "editor", "token subject, shown in server logs")
	ttl := flag.Duration("ttl", auth.DefaultTTL, "token lifetime")
	flag.Parse()

	secret := os.Getenv("RUNNER_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "RUNNER_JWT_SECRET is not set")
		os.Exit(2)
	}

	tokens, err := auth.NewTokenService(secret)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	token, err := tokens.Generate(*subject, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
