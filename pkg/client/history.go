package client

import (
	"context"
	"net/url"

	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

const historyPath = "/api/v1/history"

// HistoryClient calls the history endpoints for the authenticated user.
type HistoryClient struct {
	client *Client
}

// Create stores a history record.
func (h *HistoryClient) Create(ctx context.Context, req gentypes.CreateHistoryRequest) (*gentypes.HistoryRecord, error) {
	var out gentypes.HistoryRecord
	if err := h.client.post(ctx, historyPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the user's records, newest first.
func (h *HistoryClient) List(ctx context.Context) ([]gentypes.HistoryRecord, error) {
	var out gentypes.HistoryList
	if err := h.client.get(ctx, historyPath, &out); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []gentypes.HistoryRecord{}
	}
	return out.Items, nil
}

// Get returns one of the user's records.
func (h *HistoryClient) Get(ctx context.Context, id string) (*gentypes.HistoryRecord, error) {
	var out gentypes.HistoryRecord
	if err := h.client.get(ctx, historyPath+"/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export archives a record and returns a time-limited download URL.
func (h *HistoryClient) Export(ctx context.Context, id string) (*gentypes.ExportResponse, error) {
	var out gentypes.ExportResponse
	if err := h.client.get(ctx, historyPath+"/"+url.PathEscape(id)+"/export", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
