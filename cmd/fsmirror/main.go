// Fsmirror snapshots build outputs and reports how they change.
package main

import "github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/cli"

func main() {
	cli.Execute()
}
