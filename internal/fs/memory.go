// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.isalang.org/isac/internal/exc"
	"gopkg.isalang.org/isac/internal/isa"
)

var _ isa.FileSystem = (*FileSystemMemory)(nil)

// FileSystemMemory holds documents in memory keyed by absolute slash
// separated path. Editors use it for unsaved buffers and tests use it in
// place of the local disk.
type FileSystemMemory struct {
	lock  sync.RWMutex
	files map[string]string
}

func NewFileSystemMemory(files map[string]string) *FileSystemMemory {
	m := &FileSystemMemory{files: make(map[string]string, len(files))}
	for p, content := range files {
		m.files[cleanMemoryPath(p)] = content
	}
	return m
}

func (m *FileSystemMemory) Open(ctx context.Context, uri string) ([]isa.File, error) {
	p := cleanMemoryPath(uri)
	m.lock.RLock()
	defer m.lock.RUnlock()
	if content, ok := m.files[p]; ok {
		return []isa.File{NewFileString(p, content, KindOf(p))}, nil
	}
	prefix := strings.TrimSuffix(p, "/") + "/"
	var names []string
	for name := range m.files {
		if !strings.HasPrefix(name, prefix) || strings.Contains(name[len(prefix):], "/") {
			continue
		}
		if KindOf(name) == isa.FileKindNone {
			continue
		}
		names = append(names, name)
	}
	if len(names) < 1 {
		return nil, exc.Newf(exc.Location{URI: p}, exc.CodeFileNotFound, "%s not found", p)
	}
	sort.Strings(names)
	files := make([]isa.File, 0, len(names))
	for _, name := range names {
		files = append(files, NewFileString(name, m.files[name], KindOf(name)))
	}
	return files, nil
}

func (m *FileSystemMemory) Write(ctx context.Context, uri string, content string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.files[cleanMemoryPath(uri)] = content
	return nil
}

func cleanMemoryPath(p string) string {
	p = strings.TrimPrefix(p, "file://")
	return path.Clean(path.Join("/", p))
}
