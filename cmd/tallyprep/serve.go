package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tallyprep/tallyprep/internal/common"
	"github.com/tallyprep/tallyprep/internal/dispatch"
)

// actionRequest is one newline-delimited request from the transport layer.
type actionRequest struct {
	Payload    map[string]string `json:"payload"`
	SessionKey string            `json:"sessionKey"`
	Action     string            `json:"action"`
}

// actionResponse mirrors the action surface response contract.
type actionResponse struct {
	Render      *dispatch.RenderModel `json:"renderModel,omitempty"`
	NewState    string                `json:"newState"`
	ErrorKind   string                `json:"errorKind,omitempty"`
	UserMessage string                `json:"userMessage,omitempty"`
}

func serveCmd() *cobra.Command {
	var format string
	var outPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Process newline-delimited JSON actions from stdin",
		Long: `Reads one action request per line from stdin and writes one response per
line to stdout. The transport layer (chat bot, web UI) is expected to sit on
the other side of this pipe.

A session starts with the reserved "start_session" action whose payload
carries the recognition dump path under "file".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), format, outPath)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "export destination (sheets, csv)")
	cmd.Flags().StringVar(&outPath, "out", "", "csv output path")

	return cmd
}

func runServe(ctx context.Context, format, outPath string) error {
	provider, source, err := initCatalog()
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = source.Close() }()

	exporter, err := initExporter(ctx, format, outPath)
	if err != nil {
		slog.Warn("export destination not configured, confirm_export will fail", "error", err)
		exporter = nil
	}

	dispatcher, store := initDispatcher(provider, exporter)
	defer store.Stop()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req actionRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = encoder.Encode(actionResponse{ErrorKind: "Internal"})
			continue
		}

		resp := handleRequest(ctx, dispatcher, req)
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}

	return scanner.Err()
}

func handleRequest(ctx context.Context, dispatcher *dispatch.Dispatcher, req actionRequest) actionResponse {
	if req.Action == "start_session" {
		rec, err := loadReceipt(req.Payload["file"])
		if err != nil {
			err = common.NewUserError("could not read the scanned receipt", err)
			common.LogError(err, "failed to load recognition dump", common.Fields{"session": req.SessionKey})
			return actionResponse{ErrorKind: "Internal", UserMessage: common.UserMessage(err)}
		}
		resp, err := dispatcher.StartSession(ctx, req.SessionKey, rec)
		if err != nil {
			return actionResponse{ErrorKind: common.ErrorKind(err), UserMessage: common.UserMessage(err)}
		}
		return actionResponse{NewState: string(resp.NewState), Render: resp.Render}
	}

	resp, _ := dispatcher.Dispatch(ctx, dispatch.Request{
		SessionKey: req.SessionKey,
		Action:     dispatch.Action(req.Action),
		Payload:    req.Payload,
	})
	return actionResponse{
		NewState:    string(resp.NewState),
		Render:      resp.Render,
		ErrorKind:   resp.ErrorKind,
		UserMessage: resp.UserMessage,
	}
}
