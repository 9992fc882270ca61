package main

import (
	"os"

	"github.com/hashicorp-forge/collabdocs/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
