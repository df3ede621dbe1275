package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"callpipe/internal/config"
	"callpipe/internal/state"
)

// MustOpenStore opens a state.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *state.Store {
	t.Helper()

	store, err := state.Open(cfg)
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedCall upserts a call row for tests and returns its GUID.
func SeedCall(t testing.TB, store *state.Store, guid, callID string, lastUpdateMS int64) string {
	t.Helper()

	if _, err := store.UpsertCall(context.Background(), guid, callID, lastUpdateMS, time.Now().UTC()); err != nil {
		t.Fatalf("store.UpsertCall: %v", err)
	}
	return guid
}

// SeedRecording upserts a pending recording row for tests.
func SeedRecording(t testing.TB, store *state.Store, guid, callGUID, recordingID string, dateMS int64) {
	t.Helper()

	if _, err := store.UpsertRecording(context.Background(), guid, callGUID, recordingID, dateMS, nil, ""); err != nil {
		t.Fatalf("store.UpsertRecording: %v", err)
	}
}

// SeedCallWithRecordings seeds one call owning n sequentially numbered
// recordings and returns the recording GUIDs in sequence order.
func SeedCallWithRecordings(t testing.TB, store *state.Store, callGUID, callID string, n int) []string {
	t.Helper()

	SeedCall(t, store, callGUID, callID, 1724305416000)
	guids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		guid := fmt.Sprintf("%s-rec-%02d", callGUID, i+1)
		SeedRecording(t, store, guid, callGUID, fmt.Sprintf("%s_p%02d", callID, i+1), int64(1724305416000+i))
		guids = append(guids, guid)
	}
	return guids
}
