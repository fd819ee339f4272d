package avreel

import "github.com/hajimehoshi/ebiten/v2"

// newVideoImage allocates the reused picture-queue texture for a video
// stream at its native resolution.
func newVideoImage(width, height int) *ebiten.Image {
	return ebiten.NewImage(width, height)
}

// writeVideoImage uploads a decoded frame's pixel buffer into img in
// place, without any black-frame bookkeeping (the engine tracks
// reachedEnd at a higher level, in engine.go).
func writeVideoImage(img *ebiten.Image, unit videoUnit) {
	img.WritePixels(unit.pixels())
}
