//go:build linux

package storage

import "golang.org/x/sys/unix"

// availableBytes reports free space on the filesystem containing path,
// mirroring the teacher's sandbox package's platform-gated use of
// golang.org/x/sys/unix for a syscall not exposed by os.
func availableBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
