package checkwork

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	t.Parallel()

	d := hexDeriver()
	expected := []string{"id-a", "id-b", "id-c"}

	t.Run("accepts a complete submission with extras", func(t *testing.T) {
		res := Verify(d, expected, []*big.Int{big.NewInt(0xc), big.NewInt(0xa), big.NewInt(0xb), big.NewInt(0xff)})
		require.True(t, res.Accepted())
		require.Equal(t, 3, res.Matched)
		require.Equal(t, 2, res.IndexOf("id-b"))
		require.Equal(t, 3, res.IndexOf("id-ff"))
	})

	t.Run("reports missing identifiers", func(t *testing.T) {
		res := Verify(d, expected, []*big.Int{big.NewInt(0xa), big.NewInt(0)})
		require.False(t, res.Accepted())
		require.Equal(t, []string{"id-b", "id-c"}, res.Missing)
		require.Equal(t, "", res.Derived[1])
		require.Equal(t, -1, res.IndexOf(""))
	})

	t.Run("nil scalars match nothing", func(t *testing.T) {
		res := Verify(d, expected, []*big.Int{nil})
		require.Equal(t, 0, res.Matched)
		require.Len(t, res.Missing, 3)
	})
}
