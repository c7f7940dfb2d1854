// clrdump is a CLI tool for extracting information from managed (.NET)
// executables.
package main

import (
	"github.com/scottwis/tiny-sub001/cmd/clrdump/cmd"
)

func main() {
	cmd.Execute()
}
