package store

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NewNATS connects to a NATS server. Reconnection is left to the client's
// built-in retry so a broker restart does not take the service down.
func NewNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("store: connect nats: %w", err)
	}
	return nc, nil
}
