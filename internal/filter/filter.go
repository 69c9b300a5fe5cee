// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package filter

import "fmt"

// Element is what Filter can average and differentiate.
type Element[T any] interface {
	Add(T) T
	Sub(T) T
	Scale(float64) T
}

// Scalar lets plain float64 readings go through a Filter.
type Scalar float64

func (s Scalar) Add(b Scalar) Scalar    { return s + b }
func (s Scalar) Sub(b Scalar) Scalar    { return s - b }
func (s Scalar) Scale(f float64) Scalar { return Scalar(float64(s) * f) }

// Filter is a CircularBuffer that keeps a running total so Mean is O(1)
// even for long histories.
type Filter[T Element[T]] struct {
	CircularBuffer[T]
	total T
}

// New returns an empty Filter holding at most capacity elements.
func New[T Element[T]](capacity int) *Filter[T] {
	return &Filter[T]{CircularBuffer: *NewCircularBuffer[T](capacity)}
}

// AddElement updates the running total. Each time the write position
// wraps to slot zero the total is rebuilt from scratch so rounding error
// cannot accumulate.
func (f *Filter[T]) AddElement(e T) {
	f.total = f.total.Add(e.Sub(f.elements[f.next()]))
	f.CircularBuffer.AddElement(e)
	if f.lastIdx == 0 {
		var sum T
		for i := 0; i < f.count; i++ {
			sum = sum.Add(f.elements[i])
		}
		f.total = sum
	}
}

// Reset drops the history and the running total.
func (f *Filter[T]) Reset() {
	f.CircularBuffer.Reset()
	var zero T
	f.total = zero
}

func (f *Filter[T]) Total() T { return f.total }

// Mean of the held elements, zero when empty.
func (f *Filter[T]) Mean() T {
	if f.count == 0 {
		var zero T
		return zero
	}
	return f.total.Scale(1 / float64(f.count))
}

// weighted returns sum(coef[i] * GetPrev(i)).
func (f *Filter[T]) weighted(coef []float64) T {
	var r T
	for i, c := range coef {
		if c != 0 {
			r = r.Add(f.GetPrev(i).Scale(c))
		}
	}
	return r
}

func (f *Filter[T]) needCapacity(n int) {
	if f.Capacity() < n {
		panic(fmt.Sprintf("filter: kernel needs capacity %d, have %d", n, f.Capacity()))
	}
}

// Savitzky-Golay kernels, newest sample first.
var (
	sgSmooth8 = []float64{0.41667, 0.33333, 0.25, 0.16667, 0.08333, 0, -0.08333, -0.16667}
	sgDeriv4  = []float64{0.3, 0.1, -0.1, -0.3}
	sgDeriv5  = []float64{0.2, 0.1, 0, -0.1, -0.2}
	sgDeriv12 = []float64{
		0.03846, 0.03147, 0.02448, 0.01748, 0.01049, 0.0035,
		-0.0035, -0.01049, -0.01748, -0.02448, -0.03147, -0.03846,
	}
)

// SavitzkyGolaySmooth8 is the 8-tap smoothing kernel.
func (f *Filter[T]) SavitzkyGolaySmooth8() T {
	f.needCapacity(8)
	return f.weighted(sgSmooth8)
}

func (f *Filter[T]) SavitzkyGolayDerivative4() T {
	f.needCapacity(4)
	return f.weighted(sgDeriv4)
}

func (f *Filter[T]) SavitzkyGolayDerivative5() T {
	f.needCapacity(5)
	return f.weighted(sgDeriv5)
}

func (f *Filter[T]) SavitzkyGolayDerivative12() T {
	f.needCapacity(12)
	return f.weighted(sgDeriv12)
}

// SavitzkyGolayDerivativeN is the smoothed first derivative over an odd
// window of n samples, in units per sample.
func (f *Filter[T]) SavitzkyGolayDerivativeN(n int) T {
	f.needCapacity(n)
	m := (n - 1) / 2
	var r T
	for k := 1; k <= m; k++ {
		r = r.Add(f.GetPrev(m - k).Sub(f.GetPrev(n - m + k - 1)).Scale(float64(k)))
	}
	fm := float64(m)
	coef := 3 / (fm * (fm + 1) * (2*fm + 1))
	return r.Scale(coef)
}
