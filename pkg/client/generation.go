package client

import (
	"context"

	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// GeneratePath is the route of the generation proxy.
const GeneratePath = "/api/generate-molecules"

// Generate sends payload through the generation proxy.  The call is never
// retried.  The molecules field of the answer is returned undecoded.
func (c *Client) Generate(ctx context.Context, payload gentypes.Payload) (*gentypes.GenerateResponse, error) {
	var out gentypes.GenerateResponse
	if err := c.post(ctx, GeneratePath, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
