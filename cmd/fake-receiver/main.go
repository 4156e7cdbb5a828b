package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/betofilippi/plataforma-hooks/internal/signature"
)

const (
	sigHeader = "X-Webhook-Signature"
	tsHeader  = "X-Webhook-Timestamp"
)

var (
	failFirstN     = 0
	reqCount       = 0
	endpointSecret = ""
	responseDelay  = time.Duration(0)
	maxSkew        = 5 * time.Minute
)

func main() {
	// Simulate flaky endpoints: fail the first N requests
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}
	// Verify signatures when a secret is configured
	if v := os.Getenv("ENDPOINT_SECRET"); v != "" {
		endpointSecret = v
	}
	// Simulate slow endpoints
	if v := os.Getenv("RESPONSE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			responseDelay = d
		}
	}
	// Timestamp leeway
	if v := os.Getenv("SIGNING_LEEWAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxSkew = time.Duration(n) * time.Second
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", handleHook)

	addr := os.Getenv("HTTP_PORT")
	if addr == "" {
		addr = ":8081"
	}
	log.Printf("fake-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleHook(w http.ResponseWriter, r *http.Request) {
	reqCount++
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if responseDelay > 0 {
		time.Sleep(responseDelay)
	}

	if endpointSecret != "" {
		if ok, msg := verify(endpointSecret, b, r.Header.Get(tsHeader), r.Header.Get(sigHeader)); !ok {
			log.Printf("fake-receiver failed to verify signature: %s", msg)
			http.Error(w, "invalid signature: "+msg, http.StatusUnauthorized)
			return
		}
	}

	// First N requests fail with 500
	if reqCount <= failFirstN {
		log.Printf("FAILING (%d/%d) %s event=%s body=%s", reqCount, failFirstN, r.URL.Path,
			r.Header.Get("X-Webhook-Event"), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s event=%s delivery=%s body=%q", r.URL.Path,
		r.Header.Get("X-Webhook-Event"), r.Header.Get("X-Webhook-Delivery"), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

func verify(secret string, body []byte, ts, sig string) (bool, string) {
	if ts == "" || sig == "" {
		return false, "missing headers"
	}
	sent, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return false, "invalid timestamp"
	}
	if d := time.Since(sent); d > maxSkew || d < -maxSkew {
		return false, "timestamp too far from now (outside leeway)"
	}
	if !signature.Verify([]byte(secret), body, sig) {
		return false, "sig mismatch"
	}
	return true, ""
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
