package health

import (
	"context"
	"fmt"
	"os"
)

// Pinger is the connectivity probe a store exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabasePing verifies the queue database answers on a pooled connection.
func DatabasePing(p Pinger) Check {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// DirWritable verifies a data directory accepts writes by creating and
// removing a probe file. Used for the artifact root and the skill cache.
func DirWritable(dir string) Check {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".readyz-*")
		if err != nil {
			return fmt.Errorf("create probe in %s: %w", dir, err)
		}
		defer os.Remove(f.Name())
		if _, err := f.Write([]byte("ok")); err != nil {
			f.Close()
			return fmt.Errorf("write probe: %w", err)
		}
		return f.Close()
	}
}
