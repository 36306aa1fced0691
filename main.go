package main

import (
	"os"

	"github.com/slpdexdb/slpdexd/app"
)

func main() {
	if err := app.StartApp(); err != nil {
		os.Exit(1)
	}
}
