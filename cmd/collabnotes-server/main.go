package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"collabnotes/client"
	"collabnotes/server"
)

func main() {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8081"
	}

	var store server.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pg, err := server.NewPostgresStore(context.Background(), dbURL)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		defer pg.Close()
		store = pg
		log.Println("Connected to PostgreSQL successfully.")
	} else {
		store = server.NewMemoryStore()
		log.Println("DATABASE_URL not set, using in-memory store.")
	}

	hub := server.NewHub(store)

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		bridge, err := server.NewRedisBridge(context.Background(), redisAddr, hub)
		if err != nil {
			log.Fatalf("Could not connect to Redis: %v", err)
		}
		defer bridge.Close()
		log.Println("Connected to Redis successfully.")
	}

	if os.Getenv("MDNS_ANNOUNCE") == "1" {
		port := 8081
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			if p, err := strconv.Atoi(addr[i+1:]); err == nil {
				port = p
			}
		}
		shutdown, err := client.AnnounceServer("", port)
		if err != nil {
			log.Fatalf("Failed to register mDNS service: %v", err)
		}
		defer shutdown()
		log.Printf("mDNS service registered on port %d", port)
	}

	api := server.NewAPI(store, hub)
	log.Printf("collabnotes server listening on %s...", addr)
	if err := http.ListenAndServe(addr, api); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
