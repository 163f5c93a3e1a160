package cli

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/MolForge/internal/application/generation"
	"github.com/turtacn/MolForge/pkg/client"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// apiGenerator calls the Server Proxy through the SDK.
type apiGenerator struct {
	client *client.Client
}

// NewAPIGenerator returns a generation.Generator backed by c.
func NewAPIGenerator(c *client.Client) generation.Generator {
	return &apiGenerator{client: c}
}

func (g *apiGenerator) Generate(ctx context.Context, session generation.Session, payload gentypes.Payload) (*gentypes.GenerateResponse, error) {
	return g.client.WithToken(session.Token).Generate(ctx, payload)
}

// apiHistoryStore reaches the History Store through the history API.
type apiHistoryStore struct {
	client *client.Client
}

// NewAPIHistoryStore returns a generation.HistoryStore backed by c.
func NewAPIHistoryStore(c *client.Client) generation.HistoryStore {
	return &apiHistoryStore{client: c}
}

func (s *apiHistoryStore) Create(ctx context.Context, session generation.Session, req gentypes.CreateHistoryRequest) (*gentypes.HistoryRecord, error) {
	return s.client.WithToken(session.Token).History().Create(ctx, req)
}

func (s *apiHistoryStore) ListByUser(ctx context.Context, session generation.Session) ([]gentypes.HistoryRecord, error) {
	return s.client.WithToken(session.Token).History().List(ctx)
}

// SessionFromToken builds the session for token.  The user id is the token
// subject; the signature is checked by the server, not here.  An empty or
// unparsable token yields an anonymous session.
func SessionFromToken(token string) generation.Session {
	if token == "" {
		return generation.Session{}
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return generation.Session{}
	}
	return generation.Session{UserID: claims.Subject, Token: token}
}
