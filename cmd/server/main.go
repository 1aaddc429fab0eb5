package main

import (
	"log"

	"github.com/Manz2/chat-e2e/internal/transport/http"
)

func main() {
	if err := http.Run(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
