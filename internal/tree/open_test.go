package tree

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenUnsupportedExtension(t *testing.T) {
	_, err := Open("scan.txt")
	require.Error(t, err)

	var openErr *OpenError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, "scan.txt", openErr.File)
	assert.Contains(t, err.Error(), "unsupported extension")
}

func TestOpenMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "1068436.yaml")
	_, err := Open(missing)
	require.Error(t, err)

	var openErr *OpenError
	require.True(t, errors.As(err, &openErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestOpenCorruptHDF5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1068436.nxs")
	require.NoError(t, os.WriteFile(path, []byte("not an hdf5 file"), 0o644))

	_, err := Open(path)
	var openErr *OpenError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, path, openErr.File)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("1068436.nxs"))
	assert.True(t, Supported("scan.H5"))
	assert.True(t, Supported("fixture.yml"))
	assert.False(t, Supported("1068436.dat"))
	assert.Contains(t, Extensions(), ".nxs")
}
