// Command migrate is the CLI entrypoint: it just wires flag parsing into
// the cmd package's cobra tree.
package main

import "github.com/dmschema/migrate/cmd"

func main() {
	cmd.Execute()
}
