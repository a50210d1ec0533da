// Command promptd serves the prompt manager API.
//
// @title                      promptd API
// @version                    1.0
// @description                Ownership-scoped prompt manager. Every prompt is visible to and mutable by its owner only.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Session token: "Bearer <token>"
package main

import (
	"fmt"
	"os"

	"github.com/tbourn/go-prompt-manager/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "promptd:", err)
		os.Exit(1)
	}
}
