// Copyright (c) 2024-2025 Six After, Inc
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package prng

import (
	"fmt"
	"testing"
)

// Benchmark_Random measures steady-state throughput of Random across a
// range of output sizes.
func Benchmark_Random(b *testing.B) {
	sizes := []int{16, 64, 256, 4096}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			s, err := New(nil)
			if err != nil {
				b.Fatalf("New failed: %v", err)
			}
			buf := make([]byte, size)
			b.SetBytes(int64(size))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := s.Random(buf); err != nil {
					b.Fatalf("Random failed: %v", err)
				}
			}
		})
	}
}

// Benchmark_Seed measures the cost of composing a fresh chaining value.
func Benchmark_Seed(b *testing.B) {
	var s State
	s.cfg = DefaultConfig()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Seed(nil); err != nil {
			b.Fatalf("Seed failed: %v", err)
		}
	}
}

// Benchmark_Derive measures the cost of forking a child PRNG.
func Benchmark_Derive(b *testing.B) {
	parent, err := New(nil)
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	var child State
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := parent.Derive(&child, nil); err != nil {
			b.Fatalf("Derive failed: %v", err)
		}
	}
}
