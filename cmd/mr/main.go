// Package main provides the mr command runner.
// It loads named commands from a runner file and runs or lists them.
package main

import (
	"log"
	"os"

	"github.com/clean-dependency-project/mazerunner/internal/cli"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("mr: ")

	app := cli.NewApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
