package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// createIndexRequest is the body sent to the index endpoint
type createIndexRequest struct {
	Spec   map[string]int `json:"spec"`
	Unique bool           `json:"unique"`
}

// generateFieldName generates a random 6-letter field name
func generateFieldName() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	name := make([]byte, 6)
	for i := range name {
		name[i] = letters[rand.Intn(len(letters))]
	}
	return string(name)
}

// generateDirection returns 1 or -1
func generateDirection() int {
	if rand.Intn(2) == 0 {
		return 1
	}
	return -1
}

// createIndex sends a POST request creating an index on collection
func createIndex(client *http.Client, serverURL, appid, collection, uid string, req createIndexRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	target := fmt.Sprintf("%s/sys-api/apps/%s/dbm/collections/index?collection=%s",
		serverURL, url.PathEscape(appid), url.QueryEscape(collection))
	httpReq, err := http.NewRequest("POST", target, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Laf-Uid", uid)

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func main() {
	var (
		serverURL  string
		appid      string
		collection string
		uid        string
		requests   int
	)

	cmd := &cobra.Command{
		Use:   "create-index-load",
		Short: "Send create-index requests to a running laf system server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requests <= 0 {
				return fmt.Errorf("number of requests must be greater than 0")
			}
			return runLoad(serverURL, appid, collection, uid, requests)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8000", "Server URL")
	cmd.Flags().StringVar(&appid, "appid", "demo01", "Application id")
	cmd.Flags().StringVar(&collection, "collection", "users", "Collection to index")
	cmd.Flags().StringVar(&uid, "uid", "u-owner", "Caller uid sent in X-Laf-Uid")
	cmd.Flags().IntVarP(&requests, "requests", "n", 100, "Number of indexes to create")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLoad(serverURL, appid, collection, uid string, requests int) error {
	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Printf("Starting load test: creating %d indexes on %s/%s at %s\n", requests, appid, collection, serverURL)

	startTime := time.Now()
	successCount := 0
	errorCount := 0

	// Report every 10% or at least every request
	reportInterval := max(1, requests/10)

	for i := 0; i < requests; i++ {
		req := createIndexRequest{
			Spec:   map[string]int{generateFieldName(): generateDirection()},
			Unique: rand.Intn(4) == 0,
		}

		if err := createIndex(client, serverURL, appid, collection, uid, req); err != nil {
			errorCount++
			fmt.Printf("Error creating index %d: %v\n", i+1, err)
		} else {
			successCount++
		}

		if (i+1)%reportInterval == 0 || i == requests-1 {
			elapsed := time.Since(startTime)
			rate := float64(i+1) / elapsed.Seconds()
			fmt.Printf("Progress: %d/%d (%.1f%%) - Rate: %.1f req/sec - Success: %d, Errors: %d\n",
				i+1, requests, float64(i+1)/float64(requests)*100, rate, successCount, errorCount)
		}
	}

	totalTime := time.Since(startTime)

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("LOAD TEST COMPLETE")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Requests attempted:   %d\n", requests)
	fmt.Printf("Indexes created:      %d\n", successCount)
	fmt.Printf("Failed requests:      %d\n", errorCount)
	fmt.Printf("Total time:           %v\n", totalTime)
	fmt.Printf("Average per request:  %v\n", totalTime/time.Duration(requests))

	if errorCount > 0 {
		return fmt.Errorf("%d requests failed", errorCount)
	}
	return nil
}
