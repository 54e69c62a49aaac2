package fixture_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/checkin/internal/fixture"
)

const sample = `
events:
  - id: 5
    items:
      - {id: 11, code: WK, name: Welcome Kit}
      - {id: 12, code: LN, name: Lunch}
  - id: 6
    items:
      - {id: 21, code: BD, name: Badge}
participants:
  - id: 1
    name: Asha
    phone: "+91 98765-43210"
    scan_token: a1b2c3d4-token
    events: [5, 6]
  - id: 2
    name: Ravi
    phone: "9123456780"
    events: [6]
`

func TestParse_NormalizesAndExpands(t *testing.T) {
	f, err := fixture.Parse([]byte(sample))
	require.NoError(t, err)

	require.Len(t, f.Participants, 2)
	assert.Equal(t, "919876543210", f.Participants[0].Phone)
	assert.Equal(t, "a1b2c3d4-token", f.Participants[0].ScanToken)

	_, err = uuid.Parse(f.Participants[1].ScanToken)
	assert.NoError(t, err, "missing scan tokens are issued as UUIDs")

	allocs := f.Allocations()
	assert.Len(t, allocs, 4)
	assert.Contains(t, allocs, fixture.Allocation{EventID: 6, ItemID: 21, ParticipantID: 2})
}

func TestParse_RejectsUnknownEvent(t *testing.T) {
	_, err := fixture.Parse([]byte(`
events: [{id: 1, items: [{id: 1}]}]
participants: [{id: 1, phone: "1234567", events: [2]}]
`))
	require.Error(t, err)
}

func TestParse_RejectsDuplicatePhone(t *testing.T) {
	_, err := fixture.Parse([]byte(`
participants:
  - {id: 1, phone: "123-4567"}
  - {id: 2, phone: "1234567"}
`))
	require.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	f := fixture.Default()
	assert.NotEmpty(t, f.Allocations())
	for _, p := range f.Participants {
		assert.NotEmpty(t, p.ScanToken)
	}
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "9876543210", fixture.DigitsOnly("(987) 654-3210"))
	assert.Equal(t, "", fixture.DigitsOnly("abc"))
}
