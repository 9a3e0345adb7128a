package raster

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Tile is one decoded coverage tile with its georeferencing. Tiles are
// produced by the acquisition stage, consumed exactly once and never mutated.
type Tile struct {
	Path      string
	Image     image.Image
	Width     int
	Height    int
	Transform Transform
}

// WorldFilePath returns the sidecar path for a PNG tile ("x.png" -> "x.pgw").
func WorldFilePath(pngPath string) string {
	return strings.TrimSuffix(pngPath, filepath.Ext(pngPath)) + ".pgw"
}

// OpenTile decodes a PNG tile and its world file sidecar.
func OpenTile(pngPath string) (*Tile, error) {
	f, err := os.Open(pngPath)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open tile %s", pngPath)
	}
	defer func() { _ = f.Close() }()

	img, err := png.Decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: decode tile %s", pngPath)
	}

	transform, err := ParseWorldFile(WorldFilePath(pngPath))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	return &Tile{
		Path:      pngPath,
		Image:     img,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Transform: transform,
	}, nil
}

// ListTiles returns the PNG tiles in dir that carry a world file sidecar.
// A tile without georeferencing cannot be placed and is excluded entirely.
func ListTiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read tile dir %s", dir)
	}

	var tiles []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		pngPath := filepath.Join(dir, e.Name())
		if _, err := os.Stat(WorldFilePath(pngPath)); err != nil {
			continue
		}
		tiles = append(tiles, pngPath)
	}
	return tiles, nil
}
