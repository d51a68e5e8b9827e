package enb

import (
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"mme/pkg/s1ap"
)

// Session is the MME's view of an eNodeB after a successful S1 Setup.
type Session struct {
	ID           uint16
	Name         string
	PLMN         s1ap.PLMN
	SupportedTAs []s1ap.SupportedTA
	PagingDRX    s1ap.PagingDRX
	Association  uuid.UUID
	SetupAt      time.Time
}

// Table maps eNodeB ids to sessions and remembers insertion order. It is
// the only state shared between associations.
type Table struct {
	mu    sync.RWMutex
	byID  map[uint16]Session
	order []uint16
}

func NewTable() *Table {
	return &Table{byID: make(map[uint16]Session)}
}

// Upsert stores s under id. An existing session is replaced in place, keeping
// its position in the iteration order, and returned with ok set.
func (t *Table) Upsert(id uint16, s Session) (prior Session, ok bool) {
	s.ID = id

	t.mu.Lock()
	defer t.mu.Unlock()

	prior, ok = t.byID[id]
	if !ok {
		t.order = append(t.order, id)
	}
	t.byID[id] = s
	return prior, ok
}

func (t *Table) Get(id uint16) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byID[id]
	return s, ok
}

func (t *Table) Remove(id uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(id)
}

func (t *Table) removeLocked(id uint16) bool {
	if _, ok := t.byID[id]; !ok {
		return false
	}
	delete(t.byID, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveAssociation drops every session set up over assoc and returns the
// removed eNodeB ids.
func (t *Table) RemoveAssociation(assoc uuid.UUID) []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var gone []uint16
	for _, id := range append([]uint16(nil), t.order...) {
		if t.byID[id].Association == assoc {
			t.removeLocked(id)
			gone = append(gone, id)
		}
	}
	return gone
}

// Iterate returns a snapshot of the sessions in insertion order.
func (t *Table) Iterate() []Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Session, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
