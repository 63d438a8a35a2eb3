package fsutil

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// SpaceInfo describes the disk holding a path.
type SpaceInfo struct {
	Path        string
	TotalBytes  uint64
	FreeBytes   uint64
	UsedBytes   uint64
	PercentUsed float64
}

// GetSpaceInfo returns usage for the filesystem containing path.
func GetSpaceInfo(path string) (*SpaceInfo, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat filesystem for %s: %w", path, err)
	}
	return &SpaceInfo{
		Path:        path,
		TotalBytes:  usage.Total,
		FreeBytes:   usage.Free,
		UsedBytes:   usage.Used,
		PercentUsed: usage.UsedPercent,
	}, nil
}

// CheckFreeSpace verifies the destination volume can absorb required bytes
// plus a safety buffer while keeping minFree bytes available. The returned
// error describes the shortfall.
func CheckFreeSpace(path string, required int64, minFree int64, bufferPct float64) error {
	info, err := GetSpaceInfo(path)
	if err != nil {
		return err
	}

	needed := uint64(float64(required) * (1 + bufferPct/100))
	needed += uint64(minFree)

	if info.FreeBytes < needed {
		return fmt.Errorf("insufficient space on %s: need %d bytes (incl. %.0f%% buffer and %d reserve), have %d",
			path, needed, bufferPct, minFree, info.FreeBytes)
	}
	return nil
}
