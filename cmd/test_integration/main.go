package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var baseURL = "http://localhost:8000"

type source struct {
	VideoID string   `json:"video_id"`
	Title   string   `json:"title"`
	Score   *float64 `json:"score"`
}

type ragResponse struct {
	Answer  string   `json:"answer"`
	Sources []source `json:"sources"`
}

func main() {
	if u := os.Getenv("TUBERAG_URL"); u != "" {
		baseURL = u
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Integration Test...")

	fmt.Println("1. Health check...")
	var health struct {
		Status      string `json:"status"`
		Transcripts int    `json:"transcripts"`
	}
	if !sendRequest("GET", "/healthz", nil, &health) {
		fmt.Println("FAILED: Health check")
		os.Exit(1)
	}
	fmt.Printf("PASSED: Health check (%d transcripts indexed)\n", health.Transcripts)

	fmt.Println("2. Asking a question...")
	var resp ragResponse
	if !sendRequest("POST", "/rag/query", map[string]string{"prompt": "How do I filter rows in SQL?"}, &resp) {
		fmt.Println("FAILED: Query")
		os.Exit(1)
	}
	if resp.Answer == "" || resp.Sources == nil {
		fmt.Println("FAILED: Query returned an incomplete response")
		os.Exit(1)
	}
	if health.Transcripts > 0 && len(resp.Sources) == 0 {
		fmt.Println("WARNING: Answer cites no sources although the index is not empty")
	}
	fmt.Println("PASSED: Query")

	fmt.Println("3. Empty prompt is rejected...")
	if sendRequest("POST", "/rag/query", map[string]string{"prompt": ""}, nil) {
		fmt.Println("FAILED: Empty prompt was accepted")
		os.Exit(1)
	}
	fmt.Println("PASSED: Empty prompt")
}

func sendRequest(method, endpoint string, payload interface{}, out interface{}) bool {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			fmt.Printf("Error decoding response: %v\n", err)
			return false
		}
	}
	return true
}
