package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
	"github.com/AltairaLabs/agentgw/pkg/httputil"
)

// wellKnownCardPath is where an A2A agent publishes its self-description
// (spec §3, §4.E agent-card cache; SPEC_FULL.md supplemented feature 2).
const wellKnownCardPath = "/.well-known/agent.json"

// CardFetcher re-fetches an agent's card over HTTP (agents.refreshCard).
// Grounded on worker.HTTPDispatcher's plain unauthenticated-GET shape,
// generalized from POSTing an envelope to GETting a static resource.
type CardFetcher struct {
	Client *http.Client
}

// NewCardFetcher creates a CardFetcher using the card-refresh timeout.
func NewCardFetcher() *CardFetcher {
	return &CardFetcher{Client: httputil.NewHTTPClient(httputil.DefaultCardTimeout)}
}

func (f *CardFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return httputil.NewHTTPClient(httputil.DefaultCardTimeout)
}

// Fetch retrieves and decodes the agent card published at
// agentURL/.well-known/agent.json, returning it as a generic map so the
// registry can store it opaquely without depending on a specific card
// schema (spec §3 "agent-card cache").
func (f *CardFetcher) Fetch(ctx context.Context, agentURL string) (map[string]any, error) {
	url := strings.TrimSuffix(agentURL, "/") + wellKnownCardPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, gwerrors.New("registry", "refresh_card", gwerrors.KindInvalid, err)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, gwerrors.New("registry", "refresh_card", gwerrors.KindUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("agent card endpoint returned status %d", resp.StatusCode)
		return nil, gwerrors.New("registry", "refresh_card", gwerrors.KindRemote, err).WithStatusCode(resp.StatusCode)
	}

	var card map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, gwerrors.New("registry", "refresh_card", gwerrors.KindInvalidJSON, err)
	}
	return card, nil
}
