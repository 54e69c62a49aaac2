package memory

import (
	"time"

	"github.com/BrandonDHaskell/checkin/internal/checkin/store"
	"github.com/BrandonDHaskell/checkin/internal/fixture"
)

// Seed loads fixture data into the in-memory stores.
func Seed(fx fixture.Fixture, ps *ParticipantStore, as *AllocationStore) error {
	now := time.Now().UTC()

	for _, e := range fx.Events {
		for _, it := range e.Items {
			as.AddItem(e.ID, it.ID, it.Code, it.Name)
		}
	}
	for _, p := range fx.Participants {
		if err := ps.Add(store.Participant{
			ID:        p.ID,
			Name:      p.Name,
			Email:     p.Email,
			Phone:     p.Phone,
			ScanToken: p.ScanToken,
			Company:   p.Company,
			CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	for _, a := range fx.Allocations() {
		if err := as.Provision(a.EventID, a.ItemID, a.ParticipantID, now); err != nil {
			return err
		}
	}
	return nil
}
