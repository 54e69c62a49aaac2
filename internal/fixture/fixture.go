// Package fixture loads dev/demo provisioning data (events, items,
// participants and which events each participant is registered for) from
// YAML. Real provisioning happens outside this service; the seeders only
// exist so a fresh database has something to scan against.
package fixture

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Item struct {
	ID   int64  `yaml:"id"`
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type Event struct {
	ID    int64  `yaml:"id"`
	Items []Item `yaml:"items"`
}

type Participant struct {
	ID        int64   `yaml:"id"`
	Name      string  `yaml:"name"`
	Email     string  `yaml:"email"`
	Phone     string  `yaml:"phone"`
	ScanToken string  `yaml:"scan_token"`
	Company   string  `yaml:"company"`
	Events    []int64 `yaml:"events"`
}

type Fixture struct {
	Events       []Event       `yaml:"events"`
	Participants []Participant `yaml:"participants"`
}

// Allocation is one (event, item, participant) triple derived from the
// fixture: every participant gets every item of each event they attend.
type Allocation struct {
	EventID       int64
	ItemID        int64
	ParticipantID int64
}

// Load reads and normalizes a fixture file.
func Load(path string) (Fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.normalize(); err != nil {
		return Fixture{}, err
	}
	return f, nil
}

// Default is the starter data used by `seed-dev` when no file is given.
func Default() Fixture {
	f := Fixture{
		Events: []Event{{
			ID: 1,
			Items: []Item{
				{ID: 101, Code: "WK", Name: "Welcome Kit"},
				{ID: 102, Code: "BF", Name: "Breakfast"},
				{ID: 103, Code: "LN", Name: "Lunch"},
				{ID: 104, Code: "HT", Name: "High Tea"},
			},
		}},
		Participants: []Participant{
			{ID: 1, Name: "Dev Attendee", Email: "attendee@example.com", Phone: "9876543210", Events: []int64{1}},
			{ID: 2, Name: "Dev Speaker", Email: "speaker@example.com", Phone: "9123456780", Events: []int64{1}},
		},
	}
	_ = f.normalize()
	return f
}

// Allocations expands participant event registrations into triples.
func (f Fixture) Allocations() []Allocation {
	items := make(map[int64][]Item, len(f.Events))
	for _, e := range f.Events {
		items[e.ID] = e.Items
	}
	var out []Allocation
	for _, p := range f.Participants {
		for _, eid := range p.Events {
			for _, it := range items[eid] {
				out = append(out, Allocation{EventID: eid, ItemID: it.ID, ParticipantID: p.ID})
			}
		}
	}
	return out
}

func (f *Fixture) normalize() error {
	events := make(map[int64]struct{}, len(f.Events))
	items := make(map[int64]struct{})
	for _, e := range f.Events {
		if e.ID <= 0 {
			return fmt.Errorf("fixture: event id must be positive")
		}
		events[e.ID] = struct{}{}
		for _, it := range e.Items {
			if it.ID <= 0 {
				return fmt.Errorf("fixture: event %d has item with non-positive id", e.ID)
			}
			if _, dup := items[it.ID]; dup {
				return fmt.Errorf("fixture: duplicate item id %d", it.ID)
			}
			items[it.ID] = struct{}{}
		}
	}

	phones := make(map[string]struct{}, len(f.Participants))
	tokens := make(map[string]struct{}, len(f.Participants))
	for i := range f.Participants {
		p := &f.Participants[i]
		if p.ID <= 0 {
			return fmt.Errorf("fixture: participant id must be positive")
		}
		p.Phone = DigitsOnly(p.Phone)
		if p.Phone == "" {
			return fmt.Errorf("fixture: participant %d has no phone", p.ID)
		}
		p.ScanToken = strings.TrimSpace(p.ScanToken)
		if p.ScanToken == "" {
			p.ScanToken = uuid.NewString()
		}
		if _, dup := phones[p.Phone]; dup {
			return fmt.Errorf("fixture: duplicate phone for participant %d", p.ID)
		}
		if _, dup := tokens[p.ScanToken]; dup {
			return fmt.Errorf("fixture: duplicate scan token for participant %d", p.ID)
		}
		phones[p.Phone] = struct{}{}
		tokens[p.ScanToken] = struct{}{}
		for _, eid := range p.Events {
			if _, ok := events[eid]; !ok {
				return fmt.Errorf("fixture: participant %d registered for unknown event %d", p.ID, eid)
			}
		}
	}
	return nil
}

// DigitsOnly strips every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
