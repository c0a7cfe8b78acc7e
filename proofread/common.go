package proofread

import (
	"fmt"
	"path/filepath"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// Point3d is a voxel coordinate in the segmentation volume.
type Point3d [3]int32

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// ConvertToAbsolute returns an absolute path where any relative path is
// considered relative to the given directory.
func ConvertToAbsolute(path, dir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return path, fmt.Errorf("could not decode directory %q: %v", dir, err)
	}
	return filepath.Join(absDir, path), nil
}
