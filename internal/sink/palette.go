package sink

import "image/color"

// wheelSize is the number of distinct hues on the colour wheel: six ramps of
// 255 steps each (red, yellow, green, cyan, blue, magenta, back to red).
const wheelSize = 6 * 255

// wheelStride spreads neighbouring iteration counts apart on the wheel.
const wheelStride = 37

// Wheel colours a count. Zero, the value of points inside the set, is black.
func Wheel(v int32) color.RGBA {
	if v <= 0 {
		return color.RGBA{A: 255}
	}
	pos := int(v) * wheelStride % wheelSize
	ramp, step := pos/255, uint8(pos%255)
	switch ramp {
	case 0:
		return color.RGBA{255, step, 0, 255}
	case 1:
		return color.RGBA{255 - step, 255, 0, 255}
	case 2:
		return color.RGBA{0, 255, step, 255}
	case 3:
		return color.RGBA{0, 255 - step, 255, 255}
	case 4:
		return color.RGBA{step, 0, 255, 255}
	default:
		return color.RGBA{255, 0, 255 - step, 255}
	}
}
