package fileutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
)

const (
	// PrivateFileMode grants owner-only read/write, used for every
	// partition, node-state, and snapshot file the log writes.
	PrivateFileMode = 0600

	// PrivateDirMode grants owner-only read/write/execute, used for the
	// log directory and any tier subdirectory MkdirAll creates.
	PrivateDirMode = 0700
)

// DirWritable returns nil if dir is writable, by touching and removing
// a probe file in it.
func DirWritable(dir string) error {
	f := filepath.Join(dir, ".touch")
	if err := ioutil.WriteFile(f, []byte(""), PrivateFileMode); err != nil {
		return err
	}
	return os.Remove(f)
}

// ReadDir returns the filenames in dir in sorted order, used to
// discover partition and tier files on open without relying on the
// order the filesystem happens to return them in.
func ReadDir(dir string) ([]string, error) {
	d, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	ns, err := d.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(ns)

	return ns, nil
}

// MkdirAll runs os.MkdirAll with a writable check, so a directory
// that exists but is owned by another user fails open loudly instead
// of surfacing as a mysterious write error later.
//
// (etcd pkg.fileutil.TouchDirAll)
func MkdirAll(dir string) error {
	// If path is already a directory, MkdirAll does nothing
	// and returns nil.
	err := os.MkdirAll(dir, PrivateDirMode)
	if err != nil {
		// if mkdirAll("a/text") and "text" is not
		// a directory, this will return syscall.ENOTDIR
		return err
	}
	return DirWritable(dir)
}
