package main

import (
	"github.com/predictgate-dev/predictgate/internal/cli"
)

func main() {
	cli.Execute()
}
