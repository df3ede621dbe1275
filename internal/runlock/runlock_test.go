package runlock_test

import (
	"testing"

	"callpipe/internal/runlock"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	lock := runlock.New(dir)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestSecondAcquireFails(t *testing.T) {
	dir := t.TempDir()
	first := runlock.New(dir)
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	second := runlock.New(dir)
	if err := second.Acquire(); err == nil {
		second.Release()
		t.Fatal("second Acquire on the same state dir succeeded")
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()
	lock := runlock.New(dir)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Acquire(); err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	lock.Release()
}
