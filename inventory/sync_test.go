package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncSnapshot(t *testing.T) {
	tr := NewTracker(Reserve{Base: d("3000000"), Quote: d("120")})
	s := Sync{Tracker: tr}
	snap := s.Snapshot(d("0.00004"))
	assert.True(t, snap.EquilibriumPrice.Equal(d("0.00004")))
	assert.True(t, snap.Value.Equal(d("240")))
	assert.True(t, snap.PnL.IsZero())
	assert.Equal(t, 0, snap.Fills)

	empty := Sync{}
	assert.True(t, empty.Snapshot(d("1")).Value.IsZero())
}
