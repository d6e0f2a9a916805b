package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

func main() {
	var (
		port     = flag.Int("port", 8081, "Listen port")
		delay    = flag.Duration("delay", 0, "Artificial latency per request")
		failRate = flag.Int("fail-rate", 0, "Percentage of requests answered with 500")
	)
	flag.Parse()

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","port":%d}`, *port)
	})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Port %d] %s %s", *port, r.Method, r.RequestURI)

		if *delay > 0 {
			time.Sleep(*delay)
		}
		if *failRate > 0 && rand.Intn(100) < *failRate {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, `{"error":"simulated error","port":%d}`, *port)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"backend":"test-server","port":%d,"path":"%s","method":"%s"}`,
			*port, r.URL.Path, r.Method)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Test server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
