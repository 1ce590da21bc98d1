// Command pagemap drives the page table mapper of a simulated x86-64 machine.
package main

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	if err := loadEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	atexit.Exit(Execute())
}
