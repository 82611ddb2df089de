package tree

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// OpenError reports a store that could not be opened.
type OpenError struct {
	File string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.File, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Opener opens one store format.
type Opener func(filename string) (Tree, error)

// openers maps lower-case file extensions to backends.
var openers = map[string]Opener{
	".nxs":  OpenHDF5,
	".nx5":  OpenHDF5,
	".h5":   OpenHDF5,
	".hdf5": OpenHDF5,
	".hdf":  OpenHDF5,
	".yaml": OpenYAML,
	".yml":  OpenYAML,
}

// Open opens filename with the backend registered for its extension.
// Every failure is returned as an *OpenError.
func Open(filename string) (Tree, error) {
	opener, ok := openers[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return nil, &OpenError{File: filename, Err: fmt.Errorf("unsupported extension (want one of %s)", strings.Join(Extensions(), " "))}
	}
	t, err := opener(filename)
	if err != nil {
		return nil, &OpenError{File: filename, Err: err}
	}
	return t, nil
}

// Supported reports whether Open has a backend for filename.
func Supported(filename string) bool {
	_, ok := openers[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extensions lists the supported extensions in sorted order.
func Extensions() []string {
	exts := make([]string, 0, len(openers))
	for ext := range openers {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}
