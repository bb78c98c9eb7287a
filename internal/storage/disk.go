package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsage reports the bytes used by each data path and their total.
type DiskUsage struct {
	Paths map[string]int64 `json:"paths"`
	Total int64            `json:"total"`
}

// MeasureDiskUsage sums the size of each path. A path may be a file or a directory (summed
// recursively); missing paths count as zero.
func MeasureDiskUsage(paths ...string) (*DiskUsage, error) {
	usage := &DiskUsage{Paths: make(map[string]int64, len(paths))}
	for _, p := range paths {
		if p == "" {
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			return nil, err
		}
		usage.Paths[p] = n
		usage.Total += n
	}
	return usage, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
