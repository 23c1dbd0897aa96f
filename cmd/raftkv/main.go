package main

import (
	"log"

	"github.com/arnavsood/raftkv/internal/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Fatal(err)
	}
}
