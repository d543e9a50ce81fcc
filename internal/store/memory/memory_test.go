package memory

import (
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/arloliu/puzzlepool/internal/store/storetest"
	"github.com/arloliu/puzzlepool/types"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(_ *testing.T, clock *clockwork.FakeClock) types.AssignmentStore {
		return New(clock)
	})
}
