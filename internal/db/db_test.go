package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
)

func TestWrapError(t *testing.T) {
	db := &DB{}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil error", nil, nil},
		{"sql no rows", sql.ErrNoRows, ErrNotFound},
		{"context deadline", context.DeadlineExceeded, ErrQueryTimeout},
		{"too many connections", &pq.Error{Code: "53300"}, ErrPoolExhausted},
		{"statement timeout", &pq.Error{Code: "57014"}, ErrQueryTimeout},
		{"connection exception", &pq.Error{Code: "08006"}, ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := db.wrapError(tt.err)
			if tt.want == nil {
				if result != nil {
					t.Errorf("expected nil, got %v", result)
				}
				return
			}
			if !errors.Is(result, tt.want) {
				t.Errorf("wrapError(%v) = %v, want %v", tt.err, result, tt.want)
			}
		})
	}

	generic := errors.New("some error")
	if got := db.wrapError(generic); got != generic {
		t.Errorf("generic errors should pass through, got %v", got)
	}
}

func TestHexConversion(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0xabcd", "0xabcd"},
		{"abcd", "0xabcd"},
		{"0x", "0x"},
	}

	for _, tt := range tests {
		b := hexToBytes(tt.input)
		result := bytesToHex(b)
		if result != tt.expected {
			t.Errorf("hexToBytes/bytesToHex(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestMockDB_Systems(t *testing.T) {
	ctx := context.Background()
	db := NewMock()

	rec := &SystemRecord{Fingerprint: "0xAB01", Name: "first", Definition: "{}"}
	id, created, err := db.SaveSystem(ctx, rec)
	if err != nil || !created {
		t.Fatalf("SaveSystem: id=%d created=%v err=%v", id, created, err)
	}

	// Same fingerprint is deduplicated
	again, created, err := db.SaveSystem(ctx, &SystemRecord{Fingerprint: "0xab01", Name: "dup"})
	if err != nil || created || again != id {
		t.Errorf("duplicate SaveSystem: id=%d created=%v err=%v", again, created, err)
	}

	got, err := db.GetSystem(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPending || got.Name != "first" {
		t.Errorf("unexpected record %+v", got)
	}

	if err := db.SaveSolution(ctx, id, &Solution{Values: []string{"4"}, Labels: []string{"x"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetSystem(ctx, id)
	if got.Status != StatusSolved || len(got.Values) != 1 || got.Values[0] != "4" {
		t.Errorf("solution not stored: %+v", got)
	}

	id2, _, _ := db.SaveSystem(ctx, &SystemRecord{Fingerprint: "0xcd02", Name: "second"})
	if err := db.MarkFailed(ctx, id2, "no solution"); err != nil {
		t.Fatal(err)
	}

	list, err := db.ListSystems(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != id2 {
		t.Errorf("ListSystems should return newest first, got %+v", list)
	}
	if list, _ := db.ListSystems(ctx, 1); len(list) != 1 {
		t.Errorf("limit not applied, got %d", len(list))
	}

	stats, _ := db.GetStats(ctx)
	if stats.TotalSystems != 2 || stats.SolvedSystems != 1 || stats.FailedSystems != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if _, err := db.GetSystem(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSystem(99) = %v, want ErrNotFound", err)
	}
	if err := db.MarkFailed(ctx, 99, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkFailed(99) = %v, want ErrNotFound", err)
	}
}

func TestMockDB_RecoveredKeys(t *testing.T) {
	ctx := context.Background()
	db := NewMock()

	key := &RecoveredKey{Address: "0xABC", PrivateKey: "0x01", Method: "nonce-reuse"}
	id, err := db.SaveRecoveredKey(ctx, key)
	if err != nil {
		t.Fatal(err)
	}

	// Saving the same address again updates in place
	key.Method = "biased-nonce"
	again, err := db.SaveRecoveredKey(ctx, key)
	if err != nil || again != id {
		t.Errorf("upsert returned id=%d err=%v", again, err)
	}

	keys, _ := db.GetRecoveredKeys(ctx)
	if len(keys) != 1 || keys[0].Method != "biased-nonce" {
		t.Errorf("unexpected keys %+v", keys)
	}
}

func TestMockWithSampleData(t *testing.T) {
	db := NewMockWithSampleData()
	stats, err := db.GetStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.SolvedSystems != 1 || stats.RecoveredKeys != 1 {
		t.Errorf("unexpected sample stats %+v", stats)
	}

	id, created, _ := db.SaveSystem(context.Background(), &SystemRecord{Fingerprint: "0x01"})
	if !created || id != 2 {
		t.Errorf("new system after sample data got id=%d created=%v", id, created)
	}
}
