package main

import (
	"os"

	"horse.fit/digest/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
