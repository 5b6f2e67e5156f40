package fileutil

import "os"

// OpenDir opens a directory so its descriptor can be fsynced after a
// rename, the way a rename must be followed by an fsync of its parent
// directory to be durable across a crash.
func OpenDir(dirpath string) (*os.File, error) {
	return os.Open(dirpath)
}
