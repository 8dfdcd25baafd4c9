// Command bulletin-tool fingerprints bulletin PDFs, extracts field values
// with a template file and regenerates filled PDFs, all without a server.
package main

import (
	"os"

	"github.com/spf13/afero"
)

var version = "dev" // This will be set by build flags

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		os.Exit(1)
	}
}
