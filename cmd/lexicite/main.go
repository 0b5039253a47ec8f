package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ppiankov/lexicite/internal/cli"
)

// Exit codes: 0 all citations verified, 1 citations need attention,
// 2 the run failed
func main() {
	if err := cli.Execute(); err != nil {
		var issues *cli.IssuesError
		if errors.As(err, &issues) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}
