// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package target

import (
	"net/url"
	"path"
	"path/filepath"
)

// Normalize processes a given analysis or dependency target and converts it
// into a standard form.
//
// Targets may be any valid URI or file path. When the target is a file path or
// a file URI then we convert the paths to an absolute form. All non-file URIs
// are left as-is with the expectation that they will be handled by some other
// implementation.
func Normalize(target string) string {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "" && u.Scheme != "file") {
		return target
	}
	if u.Scheme == "file" {
		target = u.Path
	}
	if !filepath.IsAbs(target) {
		return filepath.Join("/", target)
	}
	return target
}

// Resolve returns the candidate locations of a dependency path named inside
// the document at base: first relative to the document directory, then
// relative to the file system roots.
func Resolve(base string, dependency string) []string {
	if path.IsAbs(dependency) {
		return []string{path.Clean(dependency)}
	}
	dir := path.Dir(filepath.ToSlash(Normalize(base)))
	local := path.Join(dir, dependency)
	rooted := path.Join("/", dependency)
	if local == rooted {
		return []string{local}
	}
	return []string{local, rooted}
}
