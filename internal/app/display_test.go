// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/heading"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

func litPixels(img *image1bit.VerticalLSB) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestStatusLines(t *testing.T) {
	assert.Equal(t, []string{"", "Orientation", "Waiting..."}, statusLines(displaySnapshot{}))

	s := displaySnapshot{
		pose:     orientation.Pose{Roll: 1.3, Pitch: -3, Yaw: 270},
		havePose: true,
	}
	lines := statusLines(s)
	assert.Equal(t, "R:   1.3 P:  -3.0", lines[0])
	assert.Equal(t, "Y: 270.0", lines[1])
	assert.Equal(t, "Mag: ?", lines[2])
	assert.Len(t, lines, 3)

	s.frame, s.haveFrame = fusion.Frame{}, true
	assert.Equal(t, "Mag: uncal", statusLines(s)[2])

	s.frame = fusion.Frame{MagCalibrated: true, MagReferences: 4}
	assert.Equal(t, "Mag: cal 4", statusLines(s)[2])

	s.frame.YawCorrectionLive = true
	assert.Equal(t, "Mag: yaw ok 4", statusLines(s)[2])

	s.drift, s.haveDrift = heading.Drift{Drift: -2.5}, true
	lines = statusLines(s)
	assert.Len(t, lines, 4)
	assert.Equal(t, "Hdg drift: -2.5", lines[3])
}

func TestRenderLines(t *testing.T) {
	assert.Zero(t, litPixels(renderLines(nil)))

	img := renderLines([]string{"R: 1.0"})
	assert.Equal(t, displayWidth, img.Bounds().Dx())
	assert.Equal(t, displayHeight, img.Bounds().Dy())
	one := litPixels(img)
	assert.Positive(t, one)

	// text below the first line lands lower on the screen
	two := renderLines([]string{"", "R: 1.0"})
	assert.Equal(t, one, litPixels(two))
	for x := 0; x < displayWidth; x++ {
		for y := 0; y < lineHeight-2; y++ {
			assert.Equal(t, image1bit.Off, two.BitAt(x, y))
		}
	}
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "[POSE]  ROLL=   1.00  PITCH=   2.00  YAW=   3.00",
		formatPose(orientation.Pose{Roll: 1, Pitch: 2, Yaw: 3}))

	f := fusion.Frame{Stage: 7, MagCalibrated: true, MagReferences: 2, YawCorrectionLive: true}
	line := formatFrame(f)
	assert.Contains(t, line, "#7")
	assert.Contains(t, line, "cal refs=2 yaw")
	assert.Contains(t, formatFrame(fusion.Frame{}), "uncal")

	d := heading.Drift{Source: "HDT", Reference: 10, Fused: 12, Drift: 2, MaxDrift: 2}
	assert.Equal(t, "[HDG ]  HDT ref= 10.00 fused= 12.00 drift= +2.00 max= 2.00", formatDrift(d))
}
