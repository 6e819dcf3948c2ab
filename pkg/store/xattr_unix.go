//go:build linux || darwin

package store

import (
	"errors"

	"golang.org/x/sys/unix"
)

const xattrSupported = true

func setXattr(path, key string, data []byte) error {
	return unix.Setxattr(path, key, data, 0)
}

func getXattr(path, key string) ([]byte, error) {
	// The attribute can grow between the size probe and the read.
	for range 3 {
		size, err := unix.Getxattr(path, key, nil)
		if err != nil {
			return nil, translateXattrErr(err)
		}
		buf := make([]byte, size)
		n, err := unix.Getxattr(path, key, buf)
		if errors.Is(err, unix.ERANGE) {
			continue
		}
		if err != nil {
			return nil, translateXattrErr(err)
		}
		return buf[:n], nil
	}
	return nil, unix.ERANGE
}

func removeXattr(path, key string) error {
	return translateXattrErr(unix.Removexattr(path, key))
}

func translateXattrErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errNoAttr) || errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) {
		return errNoAttribute
	}
	return err
}
