package main

import (
	"log"

	"github.com/MrSnakeDoc/onionroute/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ onionroute failed to start: %v", err)
	}
}
