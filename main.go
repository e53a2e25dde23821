package main

import (
	"os"

	"pulse-engine/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
