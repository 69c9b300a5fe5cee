// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/head_tracker/internal/geom"
)

func TestCircularBufferGetPrev(t *testing.T) {
	b := NewCircularBuffer[string](3)
	assert.Equal(t, "", b.GetPrev(0))

	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.AddElement(s)
	}
	assert.Equal(t, 3, b.Count())
	assert.Equal(t, "e", b.GetPrev(0))
	assert.Equal(t, "d", b.GetPrev(1))
	assert.Equal(t, "c", b.GetPrev(2))
	assert.Equal(t, "", b.GetPrev(3))
	assert.Panics(t, func() { b.GetPrev(-1) })

	b.Reset()
	assert.Equal(t, 0, b.Count())
	assert.Equal(t, "", b.GetPrev(0))
}

func TestCircularBufferPartiallyFilled(t *testing.T) {
	b := NewCircularBuffer[int](5)
	b.AddElement(7)
	b.AddElement(8)
	assert.Equal(t, 2, b.Count())
	assert.Equal(t, 8, b.GetPrev(0))
	assert.Equal(t, 7, b.GetPrev(1))
	assert.Equal(t, 0, b.GetPrev(2))
}

func TestFilterMeanTracksWindow(t *testing.T) {
	f := New[Scalar](4)
	assert.Equal(t, Scalar(0), f.Mean())

	for i := 1; i <= 10; i++ {
		f.AddElement(Scalar(i))
		lo := math.Max(1, float64(i-3))
		want := (lo + float64(i)) / 2
		assert.InDelta(t, want, float64(f.Mean()), 1e-12, "after %d", i)
	}
	assert.InDelta(t, 7.0+8+9+10, float64(f.Total()), 1e-12)
}

func TestFilterRunningTotalStaysExact(t *testing.T) {
	f := New[Scalar](7)
	for i := 0; i < 100000; i++ {
		f.AddElement(Scalar(0.1 * float64(i%13)))
	}
	var sum float64
	for i := 0; i < f.Count(); i++ {
		sum += float64(f.GetPrev(i))
	}
	assert.InDelta(t, sum, float64(f.Total()), 1e-9)
}

func TestSavitzkyGolayOnRamp(t *testing.T) {
	// A ramp rising by 1 per sample has derivative 1 for every symmetric
	// kernel.
	f := New[Scalar](20)
	for i := 0; i < 20; i++ {
		f.AddElement(Scalar(i))
	}
	assert.InDelta(t, 1.0, float64(f.SavitzkyGolayDerivative5()), 1e-9)
	assert.InDelta(t, 1.0, float64(f.SavitzkyGolayDerivativeN(5)), 1e-9)
	assert.InDelta(t, 1.0, float64(f.SavitzkyGolayDerivativeN(9)), 1e-9)
	assert.InDelta(t, 1.0, float64(f.SavitzkyGolayDerivativeN(15)), 1e-9)
	assert.InDelta(t, 1.0, float64(f.SavitzkyGolayDerivative4()), 1e-9)
	assert.InDelta(t, 1.0, float64(f.SavitzkyGolayDerivative12()), 1e-3)
	// the smoother reproduces the newest value of a line
	assert.InDelta(t, 19.0, float64(f.SavitzkyGolaySmooth8()), 1e-3)
}

func TestKernelNeedsCapacity(t *testing.T) {
	f := New[Scalar](4)
	assert.Panics(t, func() { f.SavitzkyGolaySmooth8() })
	assert.Panics(t, func() { f.SavitzkyGolayDerivativeN(5) })
	assert.NotPanics(t, func() { f.SavitzkyGolayDerivative4() })
}

func TestVectorFilterStatistics(t *testing.T) {
	f := NewVectorFilter(10)
	samples := []geom.Vector3{
		geom.Vec3(1, 2, 9),
		geom.Vec3(2, 4, 7),
		geom.Vec3(3, 6, 5),
		geom.Vec3(4, 8, 3),
		geom.Vec3(5, 10, 1),
	}
	for _, s := range samples {
		f.AddElement(s)
	}

	assert.True(t, geom.Vec3(3, 6, 5).Compare(f.Mean(), 1e-12))
	assert.Equal(t, geom.Vec3(3, 6, 5), f.Median())

	v := f.Variance()
	assert.InDelta(t, 2.0, v.X, 1e-12)
	assert.InDelta(t, 8.0, v.Y, 1e-12)
	assert.InDelta(t, 8.0, v.Z, 1e-12)

	c := f.Covariance()
	assert.InDelta(t, 4.0, c.At(0, 1), 1e-12)
	assert.InDelta(t, c.At(0, 1), c.At(1, 0), 1e-12)
	assert.InDelta(t, -8.0, c.At(1, 2), 1e-12)
	assert.InDelta(t, -4.0, c.At(2, 0), 1e-12)

	p := f.PearsonCoefficient()
	assert.InDelta(t, 1.0, p.X, 1e-12)
	assert.InDelta(t, -1.0, p.Y, 1e-12)
	assert.InDelta(t, -1.0, p.Z, 1e-12)
}

func TestVectorFilterUsesHeldElementsOnly(t *testing.T) {
	f := NewVectorFilter(3)
	for i := 0; i < 6; i++ {
		f.AddElement(geom.Vec3(float64(i), 0, 0))
	}
	// only 3, 4, 5 are held
	assert.Equal(t, geom.Vec3(4, 0, 0), f.Median())
	assert.InDelta(t, 4.0, f.Mean().X, 1e-12)
	assert.InDelta(t, 2.0/3.0, f.Variance().X, 1e-12)

	empty := NewVectorFilter(3)
	assert.Equal(t, geom.Vector3{}, empty.Median())
	assert.Equal(t, geom.Vector3{}, empty.Variance())
}
