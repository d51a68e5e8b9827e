package state

import (
	"fmt"
	"net"
	"time"

	"github.com/gofrs/uuid"
)

// Association is one eNodeB transport association as seen by the MME.
type Association struct {
	ID     uuid.UUID
	Remote net.Addr
	// Stream carries replies back on the stream the request arrived on.
	Stream  uint16
	Opened  time.Time
	Network string
}

func NewAssociation(network string, remote net.Addr) (*Association, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("association id: %w", err)
	}
	return &Association{ID: id, Remote: remote, Opened: time.Now(), Network: network}, nil
}

func (a *Association) String() string {
	if a.Remote == nil {
		return a.ID.String()
	}
	return fmt.Sprintf("%s (%s %s)", a.ID, a.Network, a.Remote)
}
