package monitor

import (
	"testing"

	"github.com/airhao3/jmm-trade/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestAccountState_SeenCapEvictsOldest(t *testing.T) {
	st := newAccountState(domain.TrackedAccount{Address: "0x1"})
	for _, tx := range []string{"a", "b", "c", "d"} {
		st.markSeen(tx, 3)
	}
	assert.False(t, st.hasSeen("a"))
	assert.True(t, st.hasSeen("b"))
	assert.True(t, st.hasSeen("d"))
	assert.Len(t, st.order, 3)

	// re-marcar no duplica
	st.markSeen("d", 3)
	assert.Len(t, st.order, 3)
}
