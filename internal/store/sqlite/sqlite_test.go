package sqlite

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/puzzlepool/internal/store/storetest"
	"github.com/arloliu/puzzlepool/types"
)

func openTemp(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "puzzlepool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, _ *clockwork.FakeClock) types.AssignmentStore {
		return openTemp(t)
	})
}

func TestStore_KeyspaceFilterAt256Bits(t *testing.T) {
	s := openTemp(t)

	top := new(big.Int).Lsh(big.NewInt(1), 256)
	start := new(big.Int).Sub(top, big.NewInt(100))
	iv := types.Interval{Start: start, End: new(big.Int).Sub(top, big.NewInt(1))}

	now := time.Now()
	_, err := s.Create(t.Context(), types.NewAssignment{
		Owner:     "o",
		Interval:  iv,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	full := types.NewKeyspace(big.NewInt(1), top)
	reserved, err := s.FindReservedIntervals(t.Context(), full)
	require.NoError(t, err)
	require.Len(t, reserved, 1)
	require.True(t, reserved[0].Equal(iv))

	low := types.NewKeyspace(big.NewInt(0), big.NewInt(1000))
	reserved, err = s.FindReservedIntervals(t.Context(), low)
	require.NoError(t, err)
	require.Empty(t, reserved)
}

func TestStore_BlockEndingAt256BitsStaysReserved(t *testing.T) {
	s := openTemp(t)
	ctx := t.Context()

	top := new(big.Int).Lsh(big.NewInt(1), 256)
	half := new(big.Int).Lsh(big.NewInt(1), 255)
	iv := types.Interval{Start: new(big.Int).Sub(top, big.NewInt(100)), End: top}

	now := time.Now()
	_, err := s.Create(ctx, types.NewAssignment{
		Owner:     "o",
		Interval:  iv,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	for _, ks := range []types.Keyspace{
		types.NewKeyspace(half, top),
		types.NewKeyspace(new(big.Int).Sub(top, big.NewInt(50)), top),
		types.NewKeyspace(big.NewInt(1), new(big.Int).Lsh(top, 8)),
	} {
		reserved, err := s.FindReservedIntervals(ctx, ks)
		require.NoError(t, err)
		require.Len(t, reserved, 1, "keyspace %s", ks.Interval())
		require.True(t, reserved[0].Equal(iv))
	}

	exists, err := s.ExistsExact(ctx, iv)
	require.NoError(t, err)
	require.True(t, exists)

	_, err = s.Create(ctx, types.NewAssignment{
		Owner:     "p",
		Interval:  iv,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.ErrorIs(t, err, types.ErrUniqueViolation)

	below := types.NewKeyspace(half, new(big.Int).Sub(top, big.NewInt(100)))
	reserved, err := s.FindReservedIntervals(ctx, below)
	require.NoError(t, err)
	require.Empty(t, reserved)
}

func TestStore_RejectsBoundsBeyondEncodableWidth(t *testing.T) {
	s := openTemp(t)

	huge := new(big.Int).Lsh(big.NewInt(1), 4*boundWidth)
	now := time.Now()
	_, err := s.Create(t.Context(), types.NewAssignment{
		Owner:     "o",
		Interval:  types.Interval{Start: big.NewInt(0), End: huge},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.ErrorIs(t, err, types.ErrInvalidRange)
}

func TestStore_OpenWidensLegacyBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	s, err := Open(path)
	require.NoError(t, err)

	top := new(big.Int).Lsh(big.NewInt(1), 256)
	start := new(big.Int).Sub(top, big.NewInt(10))
	now := time.Now().UnixNano()
	_, err = s.db.Exec(`INSERT INTO assignments (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"legacy", "o", "", types.FormatHex64(start), types.FormatHex64(top),
		"ACTIVE", "fresh", "[]", "", now, now, now+int64(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	reserved, err := s.FindReservedIntervals(t.Context(), types.NewKeyspace(new(big.Int).Lsh(big.NewInt(1), 255), top))
	require.NoError(t, err)
	require.Len(t, reserved, 1)
	require.Equal(t, 0, reserved[0].Start.Cmp(start))
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	s, err := Open(path)
	require.NoError(t, err)

	now := time.Now()
	a, err := s.Create(t.Context(), types.NewAssignment{
		Owner:             "o",
		Interval:          types.NewInterval(5, 9),
		SampleIdentifiers: []string{"x"},
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(t.Context(), a.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, got.SampleIdentifiers)
	require.True(t, got.CreatedAt.Equal(now))
}

func TestIsTransient(t *testing.T) {
	require.False(t, isTransient(nil))
	require.True(t, isTransient(errString("database is locked (5) (SQLITE_BUSY)")))
	require.False(t, isTransient(errString("UNIQUE constraint failed: assignments.start_hex")))
	require.True(t, isUniqueViolation(errString("constraint failed: UNIQUE constraint failed: assignments.start_hex, assignments.end_hex (2067)")))
}

type errString string

func (e errString) Error() string { return string(e) }
