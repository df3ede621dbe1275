package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FakeClient serves deterministic fixture data for tests and dry runs.
// Recordings whose source id contains "fail" download as garbage so the
// OGG validation path can be exercised without a real API.
type FakeClient struct {
	Calls      []CallTask
	Recordings map[string][]RecordingRef
}

// fakeNamespace seeds deterministic GUIDs so fixtures survive re-generation.
var fakeNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// NewFakeClient builds a client with n calls, each carrying two recordings.
func NewFakeClient(n int) *FakeClient {
	const baseMS = int64(1724305416000)
	client := &FakeClient{Recordings: make(map[string][]RecordingRef)}
	for i := 0; i < n; i++ {
		guid := uuid.NewSHA1(fakeNamespace, []byte(fmt.Sprintf("call-%02d", i))).String()
		client.Calls = append(client.Calls, CallTask{
			GUID:         guid,
			LastUpdateMS: baseMS + int64(i)*1000,
		})
		for part := 0; part < 2; part++ {
			date := baseMS + int64(i)*1000 + int64(part)
			size := int64(1024 * (part + 1))
			client.Recordings[guid] = append(client.Recordings[guid], RecordingRef{
				ID:        fmt.Sprintf("%s-rec-%02d", guid[:8], part+1),
				DateMS:    &date,
				DurationS: 42.5,
				Available: true,
				SizeBytes: &size,
			})
		}
	}
	return client
}

func (f *FakeClient) ListCalls(_ context.Context, _ string, limit int) ([]CallTask, error) {
	calls := f.Calls
	if limit > 0 && limit < len(calls) {
		calls = calls[:limit]
	}
	out := make([]CallTask, len(calls))
	copy(out, calls)
	return out, nil
}

func (f *FakeClient) ListRecordings(_ context.Context, callGUID string) ([]RecordingRef, error) {
	refs := f.Recordings[callGUID]
	out := make([]RecordingRef, len(refs))
	copy(out, refs)
	return out, nil
}

func (f *FakeClient) DownloadRecording(_ context.Context, sourceID, destPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, err
	}
	var payload []byte
	if strings.Contains(strings.ToLower(sourceID), "fail") {
		payload = []byte("INVALID_OGG_DATA")
	} else {
		payload = fakeOggPayload()
	}
	if err := os.WriteFile(destPath, payload, 0o644); err != nil {
		return 0, err
	}
	return int64(len(payload)), nil
}

func fakeOggPayload() []byte {
	var buf bytes.Buffer
	buf.WriteString("OggS")
	buf.Write(make([]byte, 23))
	buf.WriteString("vorbis")
	buf.Write(make([]byte, 1000))
	return buf.Bytes()
}
