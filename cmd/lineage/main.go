// Lineage records and inspects data provenance for files.
package main

import "github.com/albertocavalcante/lineage/cmd/lineage/internal/cli"

func main() {
	cli.Execute()
}
