// Seed script for creating demo memories.
// Run with the server up: go run ./scripts/seed.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
)

type seedMemory struct {
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ImportanceScore float32        `json:"importance_score,omitempty"`
	UserID          string         `json:"user_id,omitempty"`
}

var seedData = []seedMemory{
	{
		Content:         "Sarah Chen works at Von Base Enterprises as the platform lead.",
		UserID:          "demo",
		ImportanceScore: 0.8,
		Metadata:        map[string]any{"source": "seed"},
	},
	{
		Content:         "VBE develops Core Nexus, a long-term memory service built on PostgreSQL and pgvector.",
		UserID:          "demo",
		ImportanceScore: 0.9,
		Metadata:        map[string]any{"source": "seed"},
	},
	{
		Content:         "The production cluster runs on Kubernetes in us-east-1.",
		UserID:          "demo",
		ImportanceScore: 0.6,
		Metadata:        map[string]any{"source": "seed"},
	},
	{
		Content:         "The March outage was caused by a misconfigured HNSW index rebuild.",
		UserID:          "demo",
		ImportanceScore: 0.7,
		Metadata:        map[string]any{"source": "seed"},
	},
	{
		Content:         "Dr. Patel from Stanford presented the embedding evaluation results last Tuesday.",
		UserID:          "demo",
		ImportanceScore: 0.5,
		Metadata:        map[string]any{"source": "seed"},
	},
}

func main() {
	envFile := os.Getenv("NEXUS_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	baseURL := os.Getenv("NEXUS_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	for _, m := range seedData {
		blob, err := json.Marshal(m)
		if err != nil {
			log.Fatalf("marshal: %v", err)
		}

		resp, err := http.Post(baseURL+"/memories", "application/json", bytes.NewReader(blob))
		if err != nil {
			log.Fatalf("store failed: %v", err)
		}
		var result struct {
			ID          string `json:"id"`
			IsDuplicate bool   `json:"is_duplicate"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			log.Fatalf("decode response: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			log.Fatalf("store returned %d", resp.StatusCode)
		}

		status := "stored"
		if result.IsDuplicate {
			status = "duplicate"
		}
		fmt.Printf("%s  %s  %.60s\n", status, result.ID, m.Content)
	}

	fmt.Println("\nSeed complete. Try:")
	fmt.Printf("  curl -s %s/memories/query -d '{\"query\":\"who works at VBE\"}'\n", baseURL)
	fmt.Printf("  curl -s %s/graph/explore/von%%20base%%20enterprises\n", baseURL)
}
