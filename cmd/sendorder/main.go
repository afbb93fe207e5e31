// Command sendorder pushes a raw utterance through the running
// service: normalize, then create the order. Useful for smoke-testing
// a deployment without a speech engine.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"voice-order-logger/internal/extract"
	"voice-order-logger/internal/models"
)

func main() {
	fs := ff.NewFlagSet("sendorder")
	var (
		baseURL = fs.StringLong("url", "http://localhost:8080", "Service base URL")
		text    = fs.StringLong("text", "", "Raw utterance, e.g. '牛肉麵 一百二'")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SENDORDER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*text) == "" {
		fmt.Fprintln(os.Stderr, "error: --text is required")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 15 * time.Second}

	normalized, err := normalize(client, *baseURL, *text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "normalize failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("normalized: %q\n", normalized)

	draft, err := extract.Extract(normalized)
	if err != nil {
		fmt.Fprintf(os.Stderr, "not an order line: %v\n", err)
		os.Exit(1)
	}

	order, err := createOrder(client, *baseURL, draft)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("recorded: %s x%d @ %v (id %s)\n", order.Item, order.Quantity, order.Price, order.ID)
}

func normalize(client *http.Client, baseURL, text string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"text": text})
	resp, err := client.Post(baseURL+"/v1/normalize", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var out struct {
		Normalized string `json:"normalized"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Normalized, nil
}

func createOrder(client *http.Client, baseURL string, draft models.OrderDraft) (models.Order, error) {
	payload, _ := json.Marshal(draft)
	resp, err := client.Post(baseURL+"/v1/orders", "application/json", bytes.NewReader(payload))
	if err != nil {
		return models.Order{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Order{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var out struct {
		Success bool         `json:"success"`
		Order   models.Order `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Order{}, err
	}
	if !out.Success {
		return models.Order{}, fmt.Errorf("store rejected the order")
	}
	return out.Order, nil
}
