package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/injuryrisk/internal/predict"
)

func (h *handlers) today(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uid := UserIDFromContext(ctx)
	day := time.Now().UTC().Format(time.DateOnly)

	summary := map[string]any{"date": day}

	res, err := h.ds.Evaluate(ctx, uid, time.Time{}, nil)
	switch {
	case errors.Is(err, predict.ErrNoData):
		summary["status"] = "no data yet"
	case err != nil:
		return nil, err
	default:
		summary["evaluation"] = res
	}

	if res != nil {
		snap, err := h.ds.Snapshot(ctx, uid, time.Time{})
		if err != nil {
			h.log.Warn("today: snapshot failed", "error", err)
		} else {
			summary["snapshot"] = snap
		}
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
