package main

import (
	"github.com/ssargent/filekv/cmd/filekv/cmd"
	"github.com/ssargent/filekv/pkg/di"
)

func main() {
	container := di.NewContainer()
	cmd.SetContainer(container)
	cmd.Execute()
}
