package main

import (
	"github.com/mchmarny/chimera/pkg/cli"
)

func main() {
	cli.Execute()
}
