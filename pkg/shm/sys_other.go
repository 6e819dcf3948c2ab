//go:build !linux && !darwin

package shm

import (
	"errors"
	"os"
)

var errWouldBlock = errors.New("lock held elsewhere")

func mapFile(*os.File, int) ([]byte, error) { return nil, ErrUnsupported }

func unmap([]byte) error { return ErrUnsupported }

func tryLock(*os.File) error { return ErrUnsupported }

func unlock(*os.File) error { return ErrUnsupported }
