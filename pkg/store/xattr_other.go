//go:build !linux && !darwin

package store

import "errors"

const xattrSupported = false

var errXattrUnsupported = errors.New("extended attributes not supported on this platform")

func setXattr(string, string, []byte) error { return errXattrUnsupported }

func getXattr(string, string) ([]byte, error) { return nil, errNoAttribute }

func removeXattr(string, string) error { return errNoAttribute }
