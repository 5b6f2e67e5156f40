package fileutil

import (
	"io"
	"os"
	"syscall"
)

// Preallocate reserves sizeInBytes of disk space for f, so later writes
// into that range do not fail midway with ENOSPC. With extendFile true,
// fallocate is called without FALLOC_FL_KEEP_SIZE, growing the file's
// reported size to sizeInBytes immediately; with extendFile false,
// blocks are reserved but the file's size is left alone, which is the
// mode partition.Create uses for a new partition's
// InitialPartitionSize hint.
//
// (http://man7.org/linux/man-pages/man2/fallocate.2.html)
func Preallocate(f *os.File, sizeInBytes int64, extendFile bool) error {
	var (
		keepSizeMode uint32
		offset       int64
	)
	if !extendFile {
		keepSizeMode = 1
	}
	err := syscall.Fallocate(int(f.Fd()), keepSizeMode, offset, sizeInBytes)
	if err != nil {
		errno, ok := err.(syscall.Errno)

		if ok {
			switch extendFile {
			case true:
				// fallocate not supported
				// fallocate EINTRs frequently in some environments; fallback
				if errno == syscall.ENOTSUP || errno == syscall.EINTR {
					return preallocExtendTrunc(f, sizeInBytes)
				}

			case false:
				// treat not supported as nil error
				if errno == syscall.ENOTSUP {
					return nil
				}
			}
		}
	}
	return err
}

// preallocExtendTrunc is the fallback used when fallocate isn't
// supported on the partition's filesystem: it grows the file with a
// hole via Truncate instead, which costs no disk space up front but
// also gives none of fallocate's out-of-space guarantee.
func preallocExtendTrunc(f *os.File, sizeInBytes int64) error {
	curOff, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	sizeOff, err := f.Seek(sizeInBytes, io.SeekEnd)
	if err != nil {
		return err
	}

	if _, err = f.Seek(curOff, io.SeekStart); err != nil {
		return err
	}

	if sizeInBytes > sizeOff { // no need to change the file size
		return nil
	}

	// Truncate changes the size of the file.
	return f.Truncate(sizeInBytes)
}
