package main

import (
	"github.com/sFinOe/Video-Conference-App/internal/cli"
)

func main() {
	cli.Execute()
}
