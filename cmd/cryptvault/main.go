// Command cryptvault manages encrypted multi-user file containers.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCmd(newApp(os.Stdin, os.Stdout, os.Stderr)).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗"), err)
		os.Exit(1)
	}
}
