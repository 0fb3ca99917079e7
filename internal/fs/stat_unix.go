//go:build unix

package fs

import (
	"fmt"
	"io/fs"
	"syscall"

	"putplace/internal/pp"
)

// extractStat extracts the journaled stat fields from a FileInfo.
// Timestamps become float Unix seconds to match the journal's change
// detection semantics.
func extractStat(info fs.FileInfo) (*pp.FileStat, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("cannot extract stat data: expected *syscall.Stat_t, got %T", info.Sys())
	}

	return &pp.FileStat{
		Size:        info.Size(),
		Permissions: uint32(stat.Mode),
		UID:         int64(stat.Uid),
		GID:         int64(stat.Gid),
		Mtime:       timespecSeconds(stat.Mtim),
		Atime:       timespecSeconds(stat.Atim),
		Ctime:       timespecSeconds(stat.Ctim),
	}, nil
}

func timespecSeconds(ts syscall.Timespec) float64 {
	return float64(ts.Sec) + float64(ts.Nsec)/1e9
}
