// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package texture converts PNG images into the engine's raw texture
// format: the magic "TTEX", little-endian uint32 width and height, then
// width*height RGBA8 pixels in row order.
//
// The package has no host dependencies so the same conversion backs the
// native importer and the WebAssembly plugin build.
package texture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
)

// Importer identity shared by the native and plugin builds.
const (
	Name   = "texture"
	Format = "png"
	Target = "texture"
)

// Magic starts every texture artifact.
const Magic = "TTEX"

const headerSize = len(Magic) + 8

// ErrInvalid is returned by Decode for bytes that are not a texture.
var ErrInvalid = errors.New("texture: invalid artifact")

// Convert decodes a PNG from r and writes the texture to w.
func Convert(w io.Writer, r io.Reader) error {
	img, err := png.Decode(r)
	if err != nil {
		return fmt.Errorf("decoding png: %w", err)
	}
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	header := make([]byte, headerSize)
	copy(header, Magic)
	binary.LittleEndian.PutUint32(header[4:], uint32(bounds.Dx()))
	binary.LittleEndian.PutUint32(header[8:], uint32(bounds.Dy()))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(rgba.Pix)
	return err
}

// Decode parses a texture artifact.
func Decode(data []byte) (width, height int, pixels []byte, err error) {
	if len(data) < headerSize || string(data[:len(Magic)]) != Magic {
		return 0, 0, nil, ErrInvalid
	}
	width = int(binary.LittleEndian.Uint32(data[4:]))
	height = int(binary.LittleEndian.Uint32(data[8:]))
	pixels = data[headerSize:]
	if len(pixels) != width*height*4 {
		return 0, 0, nil, fmt.Errorf("%w: %d pixel bytes for %dx%d", ErrInvalid, len(pixels), width, height)
	}
	return width, height, pixels, nil
}
