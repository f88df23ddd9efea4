// Command cargoctl drives the back-office API from a terminal.
//
//	cargoctl -url http://localhost:8080/api/v1 -email admin@cargo.local goods
//	cargoctl ... quote < quote.json
//	cargoctl ... export -filter '{"branch_id":{"$eq":1}}' -out goods.xlsx
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/noah-isme/cargo-backoffice/internal/dataprovider"
	"github.com/noah-isme/cargo-backoffice/internal/obs"
	"github.com/noah-isme/cargo-backoffice/internal/query"
)

func main() {
	baseURL := flag.String("url", envOr("CARGO_API_URL", "http://localhost:8080/api/v1"), "API base URL")
	email := flag.String("email", os.Getenv("CARGO_EMAIL"), "login email")
	password := flag.String("password", os.Getenv("CARGO_PASSWORD"), "login password")
	filter := flag.String("filter", "", "filter tree as JSON")
	limit := flag.Int("limit", query.DefaultLimit, "page size")
	out := flag.String("out", "goods.xlsx", "export destination")
	poll := flag.Duration("poll", 500*time.Millisecond, "initial export poll interval")
	flag.Parse()

	logger := obs.NewLogger("console", envOr("LOG_LEVEL", "warn"))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := dataprovider.New(*baseURL, dataprovider.Options{Timeout: 2 * time.Minute, Logger: logger})
	if err := client.Login(ctx, *email, *password); err != nil {
		fail(err)
	}

	node, err := query.Parse(*filter)
	if err != nil {
		fail(err)
	}
	params := query.Params{Filter: node, Page: 1, Limit: *limit}

	switch cmd := flag.Arg(0); cmd {
	case "goods", "tariffs", "branches":
		res, err := client.List(ctx, cmd, params)
		if err != nil {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "%d total\n", res.Total)
		printJSON(res.Data)
	case "quote":
		var in json.RawMessage
		if err := json.NewDecoder(os.Stdin).Decode(&in); err != nil {
			fail(fmt.Errorf("read quote input: %w", err))
		}
		var quote json.RawMessage
		if err := client.Create(ctx, "goods/quote", in, &quote); err != nil {
			fail(err)
		}
		printJSON(quote)
	case "export":
		job, err := client.StartExport(ctx, params)
		if err != nil {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "export %s queued\n", job.ID)
		var buf bytes.Buffer
		if err := client.AwaitExport(ctx, job.ID, *poll, &buf); err != nil {
			fail(err)
		}
		if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", *out)
	default:
		fmt.Fprintln(os.Stderr, "usage: cargoctl [flags] goods|tariffs|branches|quote|export")
		os.Exit(2)
	}
}

func printJSON(raw json.RawMessage) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		_, _ = io.WriteString(os.Stdout, string(raw)+"\n")
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	var apiErr *dataprovider.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(os.Stderr, "error: %s (%d): %s\n", apiErr.Code, apiErr.Status, apiErr.Message)
		if len(apiErr.Details) > 0 {
			fmt.Fprintf(os.Stderr, "details: %s\n", apiErr.Details)
		}
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
