// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package prng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Fuzz_Random fuzzes State.Random across a range of buffer sizes, checking
// that for any seeded state, Random(n) for n>=1 fills the buffer and
// leaves the state seeded.
func Fuzz_Random(f *testing.F) {
	f.Add(0)
	f.Add(1)
	f.Add(32)
	f.Add(64)
	f.Add(256)
	f.Add(4096)

	f.Fuzz(func(t *testing.T, size int) {
		is := assert.New(t)

		if size < 0 || size > 1<<16 {
			t.Skip()
		}

		s, err := New(nil)
		is.NoError(err)

		buf := make([]byte, size)
		err = s.Random(buf)
		is.NoError(err)
		is.True(s.Seeded())
	})
}

// Fuzz_Derive_ExtraContext fuzzes Derive's extra-context parameter, which
// is caller-controlled and must never cause a panic or corrupt the child's
// seeded tag.
func Fuzz_Derive_ExtraContext(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte("context"))
	f.Add(make([]byte, 4096))

	f.Fuzz(func(t *testing.T, extra []byte) {
		is := assert.New(t)

		if len(extra) > 1<<16 {
			t.Skip()
		}

		parent, err := New(nil)
		is.NoError(err)

		var child State
		is.NoError(parent.Derive(&child, extra))
		is.True(child.Seeded())
	})
}
