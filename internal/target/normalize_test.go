// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package target

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		target   string
		expected string
	}{
		{name: "relative", target: "cpu/core.isa", expected: "/cpu/core.isa"},
		{name: "absolute", target: "/cpu/core.isa", expected: "/cpu/core.isa"},
		{name: "file uri", target: "file:///cpu/core.isa", expected: "/cpu/core.isa"},
		{name: "other scheme", target: "mem://buffer/1", expected: "mem://buffer/1"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, c.expected, Normalize(c.target))
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	require.Equal(t, []string{"/cpu/common.isa", "/common.isa"}, Resolve("/cpu/core.isa", "common.isa"))
	require.Equal(t, []string{"/common.isa"}, Resolve("/core.isa", "common.isa"))
	require.Equal(t, []string{"/lib/common.isa"}, Resolve("/cpu/core.isa", "/lib/common.isa"))
	require.Equal(t, []string{"/lib/common.isa"}, Resolve("/cpu/core.isa", "../lib/common.isa"))
}
