package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// fulfillctl is the operator console for the manual fulfillment queue.
//
//	fulfillctl list            show pending manual tasks
//	fulfillctl view <n>        show full detail for task n
//	fulfillctl complete <n>    deliver task n (interactive)
//	fulfillctl stats           fulfillment totals

const defaultAPIURL = "http://localhost:8080"

type manualTask struct {
	TransactionID  string         `json:"transactionId"`
	BuyerAgentID   string         `json:"buyerAgentId"`
	ListingID      string         `json:"listingId"`
	ServiceName    string         `json:"serviceName"`
	SourcePlatform string         `json:"sourcePlatform"`
	SourceURL      string         `json:"sourceUrl"`
	SourcePrice    string         `json:"sourcePrice"`
	BuyerPaid      string         `json:"buyerPaid"`
	BuyerInput     map[string]any `json:"buyerInput"`
	Instructions   string         `json:"instructions"`
	CreatedAt      string         `json:"createdAt"`
}

type client struct {
	base string
	http *http.Client
}

func newClient() *client {
	base := os.Getenv("FULFILLMENT_API_URL")
	if base == "" {
		base = defaultAPIURL
	}
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *client) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) post(path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s: %s: %s", path, resp.Status, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// queueResponse mirrors the server's manual queue envelope.
type queueResponse struct {
	Success      bool         `json:"success"`
	PendingTasks int          `json:"pendingTasks"`
	Tasks        []manualTask `json:"tasks"`
}

func (c *client) queue() ([]manualTask, error) {
	var resp queueResponse
	if err := c.get("/api/v1/fulfillment/manual/queue", &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	api := newClient()
	var err error
	switch os.Args[1] {
	case "list":
		err = runList(api)
	case "view":
		err = runTaskCmd(api, os.Args[2:], runView)
	case "complete":
		err = runTaskCmd(api, os.Args[2:], runComplete)
	case "stats":
		err = runStats(api)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fulfillctl <list|view <n>|complete <n>|stats>")
}

// runTaskCmd resolves a 1-based queue index into its task before
// dispatching to the subcommand.
func runTaskCmd(api *client, args []string, fn func(*client, manualTask) error) error {
	if len(args) < 1 {
		return fmt.Errorf("task number required")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return fmt.Errorf("invalid task number %q", args[0])
	}
	tasks, err := api.queue()
	if err != nil {
		return err
	}
	if n > len(tasks) {
		return fmt.Errorf("task %d not found (%d pending)", n, len(tasks))
	}
	return fn(api, tasks[n-1])
}

func runList(api *client) error {
	tasks, err := api.queue()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("no pending manual tasks")
		return nil
	}
	fmt.Printf("%d pending manual task(s)\n\n", len(tasks))
	for i, t := range tasks {
		fmt.Printf("[%d] %s\n", i+1, t.ServiceName)
		fmt.Printf("    txn:      %s\n", t.TransactionID)
		fmt.Printf("    platform: %s\n", t.SourcePlatform)
		fmt.Printf("    budget:   $%s (buyer paid $%s)\n", t.SourcePrice, t.BuyerPaid)
		fmt.Printf("    created:  %s\n", t.CreatedAt)
	}
	return nil
}

func runView(_ *client, t manualTask) error {
	fmt.Printf("Transaction: %s\n", t.TransactionID)
	fmt.Printf("Buyer agent: %s\n", t.BuyerAgentID)
	fmt.Printf("Listing:     %s (%s)\n", t.ListingID, t.ServiceName)
	fmt.Printf("Platform:    %s\n", t.SourcePlatform)
	fmt.Printf("Source URL:  %s\n", t.SourceURL)
	fmt.Printf("Budget:      $%s\n", t.SourcePrice)
	fmt.Printf("Buyer paid:  $%s\n", t.BuyerPaid)
	if len(t.BuyerInput) > 0 {
		enc, _ := json.MarshalIndent(t.BuyerInput, "", "  ")
		fmt.Printf("Buyer input:\n%s\n", enc)
	}
	fmt.Println()
	fmt.Println(t.Instructions)
	return nil
}

func runComplete(api *client, t manualTask) error {
	fmt.Printf("Completing %s for txn %s\n\n", t.ServiceName, t.TransactionID)

	r := bufio.NewReader(os.Stdin)
	deliveryType := prompt(r, "delivery type [file/credentials/text_result/url]", "text_result")

	data := map[string]any{}
	switch deliveryType {
	case "file":
		data["file_url"] = prompt(r, "file URL", "")
	case "credentials":
		data["username"] = prompt(r, "username", "")
		data["password"] = prompt(r, "password", "")
		data["login_url"] = prompt(r, "login URL", "")
	case "url":
		data["url"] = prompt(r, "URL", "")
	default:
		data["text"] = prompt(r, "result text", "")
	}
	notes := prompt(r, "notes (optional)", "")

	payload := map[string]any{
		"transactionId": t.TransactionID,
		"deliveryType":  deliveryType,
		"deliveryData":  data,
		"notes":         notes,
	}
	if err := api.post("/api/v1/fulfillment/manual/complete", payload, nil); err != nil {
		return err
	}
	fmt.Println("delivered")
	return nil
}

func prompt(r *bufio.Reader, label, fallback string) string {
	if fallback != "" {
		fmt.Printf("%s (%s): ", label, fallback)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback
	}
	return line
}

func runStats(api *client) error {
	var stats struct {
		TotalFulfilled  int64            `json:"totalFulfilled"`
		TotalRevenue    string           `json:"totalRevenue"`
		ByPlatform      map[string]int64 `json:"byPlatform"`
		PendingManual   int              `json:"pendingManual"`
		ManualCompleted int64            `json:"manualCompleted"`
	}
	if err := api.get("/api/v1/fulfillment/stats", &stats); err != nil {
		return err
	}
	fmt.Printf("fulfilled:        %d\n", stats.TotalFulfilled)
	fmt.Printf("revenue:          $%s\n", stats.TotalRevenue)
	fmt.Printf("pending manual:   %d\n", stats.PendingManual)
	fmt.Printf("manual completed: %d\n", stats.ManualCompleted)
	if len(stats.ByPlatform) > 0 {
		fmt.Println("by platform:")
		for p, n := range stats.ByPlatform {
			fmt.Printf("  %-14s %d\n", p, n)
		}
	}
	return nil
}
