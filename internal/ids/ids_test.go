package ids_test

import (
	"testing"
	"time"

	"callpipe/internal/ids"
)

func TestCallID(t *testing.T) {
	got, err := ids.CallID(1724305416000, "71da9579-7730-11ee-9300-a3a8e273fd52")
	if err != nil {
		t.Fatalf("CallID failed: %v", err)
	}
	if got != "20240822_054336_71da9579" {
		t.Fatalf("unexpected call id: %s", got)
	}

	short, err := ids.CallID(1724305416000, "12345678")
	if err != nil {
		t.Fatalf("CallID with minimal GUID failed: %v", err)
	}
	if short != "20240822_054336_12345678" {
		t.Fatalf("unexpected call id: %s", short)
	}
}

func TestCallIDRejectsBadInput(t *testing.T) {
	if _, err := ids.CallID(1724305416000, "1234567"); err == nil {
		t.Fatal("expected error for short GUID")
	}
	if _, err := ids.CallID(0, "71da9579-7730-11ee-9300-a3a8e273fd52"); err == nil {
		t.Fatal("expected error for zero timestamp")
	}
	if _, err := ids.CallID(-1, "71da9579-7730-11ee-9300-a3a8e273fd52"); err == nil {
		t.Fatal("expected error for negative timestamp")
	}
}

func TestIsValidCallID(t *testing.T) {
	valid := []string{
		"20240822_054336_71da9579",
		"20241231_235959_abcdef12",
		"20240101_000000_00000000",
	}
	for _, id := range valid {
		if !ids.IsValidCallID(id) {
			t.Fatalf("expected valid: %s", id)
		}
	}
	invalid := []string{
		"",
		"20240822_054336",
		"20240822_054336_71da9579_extra",
		"20240822_054336_71da95",
		"20240822_054336_71da957@",
		"2024082_054336_71da9579",
		"20240822054336_71da9579",
	}
	for _, id := range invalid {
		if ids.IsValidCallID(id) {
			t.Fatalf("expected invalid: %s", id)
		}
	}
}

func TestTimestampFromCallID(t *testing.T) {
	ts, err := ids.TimestampFromCallID("20240822_054336_71da9579")
	if err != nil {
		t.Fatalf("TimestampFromCallID failed: %v", err)
	}
	want := time.Date(2024, 8, 22, 5, 43, 36, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("expected %v, got %v", want, ts)
	}

	if _, err := ids.TimestampFromCallID("invalid"); err == nil {
		t.Fatal("expected error for invalid call id")
	}
}

func TestCallIDBase(t *testing.T) {
	base, err := ids.CallIDBase("20240822_054336_71da9579")
	if err != nil {
		t.Fatalf("CallIDBase failed: %v", err)
	}
	if base != "71da9579" {
		t.Fatalf("unexpected base: %s", base)
	}
}

func TestAssignSequenceTieBreaksOnID(t *testing.T) {
	callID := "20240822_063016_71da9579"
	refs := []ids.SequenceRef{
		{ID: "B", DateMS: 2},
		{ID: "A", DateMS: 2},
		{ID: "C", DateMS: 3},
	}
	got, err := ids.AssignSequence(callID, refs)
	if err != nil {
		t.Fatalf("AssignSequence failed: %v", err)
	}
	want := map[string]string{
		"A": callID + "_p01",
		"B": callID + "_p02",
		"C": callID + "_p03",
	}
	for id, seq := range want {
		if got[id] != seq {
			t.Fatalf("%s: expected %s, got %s", id, seq, got[id])
		}
	}
}

func TestAssignSequenceEmptyAndErrors(t *testing.T) {
	got, err := ids.AssignSequence("20240822_063016_71da9579", nil)
	if err != nil {
		t.Fatalf("AssignSequence failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty mapping, got %v", got)
	}

	if _, err := ids.AssignSequence("", []ids.SequenceRef{{ID: "A", DateMS: 1}}); err == nil {
		t.Fatal("expected error for empty call id")
	}
}

func TestNewRunID(t *testing.T) {
	id := ids.NewRunID()
	if len(id) != 26 {
		t.Fatalf("expected 26 characters, got %d (%s)", len(id), id)
	}
	if !ids.IsValidRunID(id) {
		t.Fatalf("generated run id fails validation: %s", id)
	}
}

func TestIsValidRunID(t *testing.T) {
	if !ids.IsValidRunID("01J9ZC3AC9V2J9FZK2C3R8K9TQ") {
		t.Fatal("expected valid run id")
	}
	invalid := []string{
		"",
		"01J9ZC3AC9V2J9FZK2C3R8K9T",
		"01J9ZC3AC9V2J9FZK2C3R8K9TQQ",
		"01J9ZC3AC9V2J9FZK2C3R8K9TIQ",
		"01J9ZC3AC9V2J9FZK2C3R8K9TLQ",
		"01J9ZC3AC9V2J9FZK2C3R8K9TOQ",
		"01J9ZC3AC9V2J9FZK2C3R8K9TUQ",
	}
	for _, id := range invalid {
		if ids.IsValidRunID(id) {
			t.Fatalf("expected invalid: %s", id)
		}
	}
}
