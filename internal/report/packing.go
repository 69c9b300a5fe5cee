// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package report

const (
	fieldBits = 21
	fieldMask = 1<<fieldBits - 1
)

// SignExtend interprets the low bits of v as a two's complement number
// whose sign bit is bit bits-1.
func SignExtend(v uint32, bits uint) int32 {
	sign := uint32(1) << (bits - 1)
	r := int32(v & (sign - 1))
	if v&sign != 0 {
		r += int32(^(sign - 1))
	}
	return r
}

// unpackSensor reads three 21-bit fields packed big-endian into 8 bytes:
// X in bits 63..43, Y in 42..22, Z in 21..1.
func unpackSensor(d []byte) Vec3i {
	_ = d[7]
	x := uint32(d[0])<<13 | uint32(d[1])<<5 | uint32(d[2]&0xF8)>>3
	y := uint32(d[2]&0x07)<<18 | uint32(d[3])<<10 | uint32(d[4])<<2 | uint32(d[5]&0xC0)>>6
	z := uint32(d[5]&0x3F)<<15 | uint32(d[6])<<7 | uint32(d[7])>>1
	return Vec3i{
		X: SignExtend(x, fieldBits),
		Y: SignExtend(y, fieldBits),
		Z: SignExtend(z, fieldBits),
	}
}

// packSensor is the inverse of unpackSensor. Values are truncated to 21
// bits.
func packSensor(d []byte, v Vec3i) {
	_ = d[7]
	x := uint32(v.X) & fieldMask
	y := uint32(v.Y) & fieldMask
	z := uint32(v.Z) & fieldMask
	d[0] = byte(x >> 13)
	d[1] = byte(x >> 5)
	d[2] = byte(x<<3) | byte(y>>18)&0x07
	d[3] = byte(y >> 10)
	d[4] = byte(y >> 2)
	d[5] = byte(y<<6) | byte(z>>15)&0x3F
	d[6] = byte(z >> 7)
	d[7] = byte(z << 1)
}
