//go:build !linux

package main

import (
	"context"
	"errors"
	"os"
)

func readInputEvents(ctx context.Context, files []*os.File, out chan<- inputEvent) error {
	return errors.New("evdev input devices are only supported on linux")
}
