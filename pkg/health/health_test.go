package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckerAllHealthy(t *testing.T) {
	checker := NewChecker(time.Second)
	checker.Register("alpha", func(ctx context.Context) error { return nil })
	checker.Register("beta", func(ctx context.Context) error { return nil })

	report := checker.Run(context.Background())
	if !report.Healthy {
		t.Fatalf("expected healthy report, got %+v", report)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 results, got %d", len(report.Checks))
	}
	if report.Checks[0].Name != "alpha" || report.Checks[1].Name != "beta" {
		t.Errorf("results out of registration order: %+v", report.Checks)
	}
	for _, result := range report.Checks {
		if !result.Healthy {
			t.Errorf("check %s unexpectedly unhealthy: %s", result.Name, result.Error)
		}
		if result.Error != "" {
			t.Errorf("check %s carries error %q", result.Name, result.Error)
		}
	}
}

func TestCheckerOneFailureFailsReport(t *testing.T) {
	checker := NewChecker(time.Second)
	checker.Register("good", func(ctx context.Context) error { return nil })
	checker.Register("bad", func(ctx context.Context) error { return errors.New("connection refused") })

	report := checker.Run(context.Background())
	if report.Healthy {
		t.Fatal("expected unhealthy report")
	}
	if report.Checks[0].Healthy != true || report.Checks[1].Healthy != false {
		t.Errorf("per-check health wrong: %+v", report.Checks)
	}
	if report.Checks[1].Error != "connection refused" {
		t.Errorf("expected error string preserved, got %q", report.Checks[1].Error)
	}
}

func TestCheckerTimeoutCancelsCheck(t *testing.T) {
	checker := NewChecker(20 * time.Millisecond)
	checker.Register("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	start := time.Now()
	report := checker.Run(context.Background())
	if report.Healthy {
		t.Fatal("expected timeout to fail the check")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("check was not cancelled at the timeout, ran %v", elapsed)
	}
}

func TestCheckerReRegisterKeepsPosition(t *testing.T) {
	checker := NewChecker(time.Second)
	checker.Register("first", func(ctx context.Context) error { return nil })
	checker.Register("second", func(ctx context.Context) error { return nil })
	checker.Register("first", func(ctx context.Context) error { return errors.New("replaced") })

	report := checker.Run(context.Background())
	if len(report.Checks) != 2 {
		t.Fatalf("re-registration duplicated a check: %+v", report.Checks)
	}
	if report.Checks[0].Name != "first" || report.Checks[0].Healthy {
		t.Errorf("replacement did not take effect in place: %+v", report.Checks[0])
	}
}

func TestDirWritable(t *testing.T) {
	dir := t.TempDir()
	if err := DirWritable(dir)(context.Background()); err != nil {
		t.Fatalf("writable dir failed the check: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestDirWritableMissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if err := DirWritable(missing)(context.Background()); err == nil {
		t.Fatal("expected failure for a missing directory")
	}
}
