//go:build !linux

package platform

import (
	"context"
	"os"
)

func rangeCopy(context.Context, *os.File, *os.File, int64) (int64, error) {
	return 0, errNoRange
}

func preallocate(*os.File, int64) {}
