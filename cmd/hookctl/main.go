package main

import (
	"log"

	"github.com/betofilippi/plataforma-hooks/cmd/hookctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
