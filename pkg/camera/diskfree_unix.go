//go:build linux || darwin

package camera

import "golang.org/x/sys/unix"

// freeSpace reports bytes available to unprivileged users under dir.
func freeSpace(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
