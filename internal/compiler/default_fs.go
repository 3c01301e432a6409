// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package compiler

import (
	"path/filepath"

	"gopkg.isalang.org/isac/internal/fs"
	"gopkg.isalang.org/isac/internal/isa"
)

// NewDefaultFS returns a file system over the given roots followed by the
// roots derived from the environment. The options apply to every root.
func NewDefaultFS(lookup func(string) (string, bool), roots []string, options ...fs.FileSystemLocalOption) (isa.FileSystem, error) {
	roots = append(append([]string(nil), roots...), getDefaultRoots(lookup)...)
	f := make(fs.FileSystemMulti, 0, len(roots))
	for _, root := range roots {
		absRoot, errAbs := filepath.Abs(root)
		if errAbs != nil {
			return nil, errAbs
		}
		rf, err := fs.NewFileSystemLocal(absRoot, options...)
		if err != nil {
			return nil, err
		}
		f = append(f, rf)
	}
	return f, nil
}
