package fileutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PurgeFile keeps the max most recent files matching the given suffix in
// dir, removing older ones every interval, until stopc is closed. Files
// are removed oldest-first by name; when the next candidate is still
// locked (see OpenFileWithLockNonBlocking), removal stops at it until
// the next interval, so the holder of that lock never has the file
// yanked out from under it.
//
// (etcd pkg.fileutil.PurgeFile)
func PurgeFile(dir, suffix string, max uint, interval time.Duration, stopc <-chan struct{}) <-chan error {
	return purgeFile(dir, suffix, max, interval, stopc, nil)
}

func purgeFile(dir, suffix string, max uint, interval time.Duration, stopc <-chan struct{}, purgec chan<- string) <-chan error {
	errC := make(chan error, 1)
	go func() {
		for {
			fnames, err := ReadDir(dir)
			if err != nil {
				errC <- err
				return
			}

			newfnames := make([]string, 0)
			for _, fname := range fnames {
				if strings.HasSuffix(fname, suffix) {
					newfnames = append(newfnames, fname)
				}
			}
			sort.Strings(newfnames)

			for len(newfnames) > int(max) {
				f := filepath.Join(dir, newfnames[0])
				l, err := OpenFileWithLockNonBlocking(f, os.O_WRONLY, PrivateFileMode)
				if err != nil {
					break // file is still locked by a reader; retry next tick
				}
				if err = l.Close(); err != nil {
					errC <- err
					return
				}
				if err = os.Remove(f); err != nil {
					errC <- err
					return
				}
				newfnames = newfnames[1:]

				select {
				case purgec <- f:
				default:
				}
			}

			select {
			case <-time.After(interval):
			case <-stopc:
				return
			}
		}
	}()
	return errC
}
