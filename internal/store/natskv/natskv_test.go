package natskv

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/puzzlepool/internal/store/storetest"
	pooltest "github.com/arloliu/puzzlepool/testing"
	"github.com/arloliu/puzzlepool/types"
)

var bucketSeq atomic.Int64

func TestStore_Conformance(t *testing.T) {
	_, nc := pooltest.StartEmbeddedNATS(t)

	storetest.Run(t, func(t *testing.T, clock *clockwork.FakeClock) types.AssignmentStore {
		bucket := fmt.Sprintf("assignments-%d", bucketSeq.Add(1))
		kv := pooltest.CreateJetStreamKV(t, nc, bucket, 0)

		return New(kv, WithClock(clock), WithLogger(pooltest.NewTestLogger(t)))
	})
}

func TestStore_RepairsDanglingRangeKey(t *testing.T) {
	_, nc := pooltest.StartEmbeddedNATS(t)
	kv := pooltest.CreateJetStreamKV(t, nc, "assignments-dangling", 0)
	s := New(kv, WithClaimGrace(0))

	iv := types.NewInterval(100, 200)

	// Simulate a crash between the range claim and the record write.
	_, err := kv.Create(t.Context(), rangeKey(iv), []byte("ghost"))
	require.NoError(t, err)

	exists, err := s.ExistsExact(t.Context(), iv)
	require.NoError(t, err)
	require.False(t, exists)

	now := time.Now()
	a, err := s.Create(t.Context(), types.NewAssignment{
		Owner:     "owner",
		Interval:  iv,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	entry, err := kv.Get(t.Context(), rangeKey(iv))
	require.NoError(t, err)
	require.Equal(t, a.ID, string(entry.Value()))
}

func TestStore_YoungOrphanBlocksInterval(t *testing.T) {
	_, nc := pooltest.StartEmbeddedNATS(t)
	kv := pooltest.CreateJetStreamKV(t, nc, "assignments-inflight", 0)
	s := New(kv)

	iv := types.NewInterval(100, 200)
	_, err := kv.Create(t.Context(), rangeKey(iv), []byte("in-flight"))
	require.NoError(t, err)

	now := time.Now()
	_, err = s.Create(t.Context(), types.NewAssignment{
		Owner:     "owner",
		Interval:  iv,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.ErrorIs(t, err, types.ErrUniqueViolation)
}

func TestStore_RecordsAreHexEncoded(t *testing.T) {
	_, nc := pooltest.StartEmbeddedNATS(t)
	kv := pooltest.CreateJetStreamKV(t, nc, "assignments-json", 0)
	s := New(kv)

	now := time.Now()
	a, err := s.Create(t.Context(), types.NewAssignment{
		Owner:     "owner",
		Interval:  types.NewInterval(0x10, 0x20),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	entry, err := kv.Get(t.Context(), recordKey(a.ID))
	require.NoError(t, err)
	require.Contains(t, string(entry.Value()), types.FormatHex64(a.Interval.Start))
	require.Contains(t, string(entry.Value()), `"status":"ACTIVE"`)
}
