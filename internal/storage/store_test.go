package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s := NewFileStore(path)

	if err := s.Save("abc", "10.0.0.5"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	sess, ok := s.Load()
	if !ok {
		t.Fatal("expected session after save")
	}
	if sess.SessionID != "abc" {
		t.Errorf("expected sessionId abc, got %q", sess.SessionID)
	}
	if sess.PeerAddress != "10.0.0.5" {
		t.Errorf("expected peerAddress 10.0.0.5, got %q", sess.PeerAddress)
	}
	if sess.CreatedAt.IsZero() {
		t.Error("expected createdAt to be set")
	}
}

func TestLoadIdempotent(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	if err := s.Save("tok", "peer:8000"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	first, ok1 := s.Load()
	second, ok2 := s.Load()
	if !ok1 || !ok2 {
		t.Fatal("expected both loads to succeed")
	}
	if first.SessionID != second.SessionID || first.PeerAddress != second.PeerAddress {
		t.Errorf("loads disagree: %+v vs %+v", first, second)
	}
}

func TestLoadAbsentStates(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(path string)
	}{
		{
			name:    "missing file",
			prepare: func(path string) {},
		},
		{
			name: "empty file",
			prepare: func(path string) {
				os.WriteFile(path, nil, 0644)
			},
		},
		{
			name: "malformed json",
			prepare: func(path string) {
				os.WriteFile(path, []byte("{not json"), 0644)
			},
		},
		{
			name: "empty array",
			prepare: func(path string) {
				os.WriteFile(path, []byte("[]"), 0644)
			},
		},
		{
			name: "blank session id",
			prepare: func(path string) {
				os.WriteFile(path, []byte(`[{"sessionId":"","peerAddress":"x"}]`), 0644)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			tt.prepare(path)

			s := NewFileStore(path)
			if sess, ok := s.Load(); ok {
				t.Errorf("expected absent session, got %+v", sess)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileStore(path)

	// Removing a record that never existed is fine.
	if err := s.Remove(); err != nil {
		t.Fatalf("remove on missing record failed: %v", err)
	}

	if err := s.Save("tok", "peer:8000"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok := s.Load(); ok {
		t.Error("expected no session after remove")
	}
}

func TestRecordLayoutIsArrayDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileStore(path)
	if err := s.Save("tok", "peer:8000"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}

	// Other processes parse this file directly; the array-with-one-element
	// layout is load-bearing.
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("record is not a JSON array document: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected one element, got %d", len(raw))
	}
	if raw[0]["sessionId"] != "tok" {
		t.Errorf("unexpected sessionId field: %v", raw[0])
	}
}
