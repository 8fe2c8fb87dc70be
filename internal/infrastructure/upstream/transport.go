package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/resilience"
)

const maxErrorBody = 2048

// Call runs one HTTP exchange through the executor when present.
// build must create a fresh request per attempt since bodies are consumed.
func Call(
	ctx context.Context,
	client *http.Client,
	executor *resilience.Executor,
	service, operation string,
	build func(context.Context) (*http.Request, error),
	out any,
) error {
	call := func(ctx context.Context) error {
		req, err := build(ctx)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		return do(client, req, service, operation, out)
	}

	var err error
	if executor != nil {
		err = executor.Execute(ctx, service+"."+operation, call, Classify)
	} else {
		err = call(ctx)
	}
	return MapError(service+" "+operation, err)
}

func do(client *http.Client, req *http.Request, service, operation string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", service, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Service:    service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", service, operation, err)
	}
	return nil
}
