package aicp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tboxorg/aicp/aico"
)

func TestKillingListDrainEmptiesAndReturnsOrder(t *testing.T) {
	var k killingList
	a1, a2 := aico.New(), aico.New()

	require.Nil(t, k.drain(), "draining an empty list returns nil")

	k.add(a1)
	k.add(a2)
	got := k.drain()
	require.Equal(t, []*aico.AICO{a1, a2}, got)
	require.Nil(t, k.drain(), "drain must empty the list")
}
