package main

import (
	"crypto/rand"
	"encoding/hex"
	"math"
)

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Distance returns the distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// randFloat returns a random float64 in [0, 1) using a simple xorshift
// seeded from crypto/rand. Good enough for spawn positions.
var randSrc uint64

func randFloat() float64 {
	randSrc ^= randSrc << 13
	randSrc ^= randSrc >> 7
	randSrc ^= randSrc << 17
	if randSrc == 0 {
		randSrc = 1
	}
	return float64(randSrc%10000) / 10000.0
}

// randRange returns a random float64 in [lo, hi)
func randRange(lo, hi float64) float64 {
	return lo + randFloat()*(hi-lo)
}

func init() {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	for i, v := range b {
		randSrc |= uint64(v) << (uint(i) * 8)
	}
	if randSrc == 0 {
		randSrc = 1
	}
}

// GenerateGuestName creates a unique guest name like "Guest_a3f2"
func GenerateGuestName() string {
	b := make([]byte, 3)
	rand.Read(b)
	return "Guest_" + hex.EncodeToString(b)
}
