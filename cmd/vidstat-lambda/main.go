package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/crimson-sun/vidstat/internal/app"
	"github.com/crimson-sun/vidstat/internal/config"
	"github.com/crimson-sun/vidstat/internal/logging"
)

// Response is returned to the invoker on success.
type Response struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type handler struct {
	app *app.App
}

// Handle runs one ingestion. The event payload is ignored. Any status other
// than SUCCESS is reported as an error so the invocation is marked failed.
func (h *handler) Handle(ctx context.Context, _ json.RawMessage) (Response, error) {
	result, err := h.app.Ingest(ctx)
	resp := Response{Status: result.Status, Timestamp: result.Timestamp}
	if err != nil {
		return resp, fmt.Errorf("run %s finished with status %s: %w", result.RunID, result.Status, err)
	}
	return resp, nil
}

func main() {
	cfg := config.Load()
	logging.Init(true, logging.ParseLevel(cfg.LogLevel))

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		panic(err)
	}
	lambda.Start((&handler{app: a}).Handle)
}
