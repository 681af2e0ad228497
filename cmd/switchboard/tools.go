package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/switchboardai/switchboard/pkg/chat"
	"github.com/switchboardai/switchboard/pkg/tool/functiontool"
)

const maxFetchBytes = 256 * 1024

// builtinTools are small local tools available behind --tools.
func builtinTools() ([]chat.Tool, error) {
	currentTime, err := functiontool.New("current_time", "Get the current date and time",
		func(ctx context.Context, args struct {
			Format string `json:"format,omitempty" jsonschema:"description=Go reference time layout,default=RFC3339"`
		}) (string, error) {
			layout := args.Format
			if layout == "" || layout == "RFC3339" {
				layout = time.RFC3339
			}
			return time.Now().Format(layout), nil
		})
	if err != nil {
		return nil, err
	}

	fetchURL, err := functiontool.New("fetch_url", "Fetch the contents of an HTTP URL",
		func(ctx context.Context, args struct {
			URL string `json:"url" jsonschema:"required,description=URL to fetch"`
		}) (string, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
			if err != nil {
				return "", err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
			if err != nil {
				return "", err
			}
			if resp.StatusCode >= 400 {
				return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
			}
			return string(body), nil
		})
	if err != nil {
		return nil, err
	}

	return []chat.Tool{currentTime, fetchURL}, nil
}
