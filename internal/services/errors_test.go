package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"callpipe/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "ingest", "download", "recording fetch", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to survive")
	}
	if !strings.Contains(err.Error(), "ingest: download: recording fetch") {
		t.Fatalf("expected stage detail in message, got %q", err.Error())
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		marker error
		want   bool
	}{
		{services.ErrTransient, false},
		{services.ErrTimeout, false},
		{services.ErrConfiguration, false},
		{services.ErrPermanent, true},
		{services.ErrValidation, true},
		{services.ErrNotFound, true},
	}
	for _, tc := range cases {
		err := fmt.Errorf("%w: detail", tc.marker)
		if got := services.IsPermanent(err); got != tc.want {
			t.Fatalf("IsPermanent(%v) = %v, want %v", tc.marker, got, tc.want)
		}
	}
}

func TestKey(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: x", services.ErrTimeout), "timeout"},
		{fmt.Errorf("%w: x", services.ErrValidation), "validation_error"},
		{fmt.Errorf("%w: x", services.ErrNotFound), "not_found"},
		{fmt.Errorf("%w: x", services.ErrPermanent), "permanent_error"},
		{errors.New("anything else"), "transient_error"},
	}
	for _, tc := range cases {
		if got := services.Key(tc.err); got != tc.want {
			t.Fatalf("Key(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
