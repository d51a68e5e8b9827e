package core

import (
	"fmt"

	"mme/pkg/s1ap"
)

// MME is the node configuration announced in S1 Setup Response.
type MME struct {
	Name             string
	PLMN             s1ap.PLMN
	GroupID          uint16
	Code             uint8
	RelativeCapacity uint8
}

func (m MME) validate() error {
	if err := m.PLMN.Validate(); err != nil {
		return fmt.Errorf("MME PLMN: %w", err)
	}
	if len(m.Name) > 150 {
		return fmt.Errorf("MME name of %d characters", len(m.Name))
	}
	return nil
}

func (m MME) setupResponse() *s1ap.S1SetupResponse {
	return &s1ap.S1SetupResponse{
		MMEName: m.Name,
		ServedGUMMEIs: []s1ap.ServedGUMMEI{{
			PLMNs:    []s1ap.PLMN{m.PLMN},
			GroupIDs: []uint16{m.GroupID},
			Codes:    []uint8{m.Code},
		}},
		RelativeMMECapacity: m.RelativeCapacity,
	}
}
