package interfaces

import (
	"errors"
	"net/http"

	"homecare-cloud/internal/eventing"
)

// RelayHandler triggers one outbox relay run on demand.
type RelayHandler struct {
	relay *eventing.Relay
}

// NewRelayHandler constructs a handler.
func NewRelayHandler(relay *eventing.Relay) (*RelayHandler, error) {
	if relay == nil {
		return nil, errors.New("relay handler: nil relay")
	}
	return &RelayHandler{relay: relay}, nil
}

// ServeHTTP handles POST /api/v1/outbox/relay.
func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.relay.RunOnce(r.Context()))
}
