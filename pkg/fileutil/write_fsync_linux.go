package fileutil

import (
	"io"
	"os"
	"syscall"
)

// Fsync commits a partition or snapshot file's current contents to
// disk, flushing the filesystem's in-memory copy of recently written
// records so a crash immediately after a durable append cannot lose
// them.
//
// (etcd pkg.fileutil.Fsync)
func Fsync(f *os.File) error {
	return f.Sync()
}

// Fdatasync flushes a partition's data buffers without also forcing
// the inode metadata update Fsync performs, which is enough for
// partition appends since their record layout doesn't depend on
// access/modification times being durable too.
//
// (etcd pkg.fileutil.Fdatasync)
func Fdatasync(f *os.File) error {
	return syscall.Fdatasync(int(f.Fd()))
}

// WriteSync writes data to fpath like ioutil.WriteFile, but calls Sync
// before closing so the node-state file is never left observably
// written-but-not-durable.
//
// (etcd pkg.ioutil.WriteAndSyncFile)
func WriteSync(fpath string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}

	if err == nil {
		err = f.Sync()
	}

	if e := f.Close(); err == nil {
		err = e
	}
	return err
}
