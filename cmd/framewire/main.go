/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"github.com/ssargent/framewire/cmd/framewire/cmd"
	"github.com/ssargent/framewire/pkg/di"
)

func main() {
	container := di.NewContainer()
	cmd.SetContainer(container)

	cmd.Execute()
}
