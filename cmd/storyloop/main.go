// storyloop runs turn-based narrative simulations: a director and a cast
// of character decision units improvise a scene over a shared world state
// until the story concludes or the turn budget runs out.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
