package install

import (
	"path/filepath"
	"strings"
)

// sanitizeFilename reports whether name is already in its
// filename-sanitised form: no path separators, no traversal, and a
// non-empty basename equal to the input.
func sanitizeFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	return filepath.Base(name) == name
}
