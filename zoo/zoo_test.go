package zoo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamesSorted(t *testing.T) {
	names := Names()
	require.Contains(t, names, "resnet18")
	require.IsIncreasing(t, names)
}

func TestLookup(t *testing.T) {
	entry, err := Lookup("resnet18")
	require.NoError(t, err)
	require.Equal(t, "onnx-community/resnet-18", entry.RepoID)
	require.NotEmpty(t, entry.FileName)
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("alexnet9000")
	require.ErrorContains(t, err, "unknown model")
	require.ErrorContains(t, err, "resnet18") // error lists what is available
}
