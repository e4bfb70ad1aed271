// Command mcqq runs the Minecraft / QQ chat router.
package main

import (
	"fmt"
	"os"

	"mcqq/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
