// Command deepcrawl crawls a website and writes one text document per
// page, with boilerplate shared across pages removed.
package main

import (
	"context"
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
