// Command audiencectl sizes and inspects audiences against a dataset
// directory without a database.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
