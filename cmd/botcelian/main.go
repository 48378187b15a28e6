// Command botcelian moderates newly created Vikidia pages.
package main

import (
	"fmt"
	"os"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/cli"
)

func main() {
	if err := cli.Execute(os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
