package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendChatAndHistoryOrder(t *testing.T) {
	s := NewSession(t.TempDir(), 10)
	s.AppendChat(1, "alice", "hi")
	s.AppendChat(2, "bob", "hello")

	hist := s.ChatHistory()
	if len(hist) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(hist))
	}
	if hist[0].Text != "hi" || hist[1].Text != "hello" {
		t.Errorf("unexpected order: %+v", hist)
	}
}

func TestAppendChatEvictsOldestBeyondCap(t *testing.T) {
	s := NewSession(t.TempDir(), 2)
	s.AppendChat(1, "alice", "one")
	s.AppendChat(1, "alice", "two")
	s.AppendChat(1, "alice", "three")

	hist := s.ChatHistory()
	if len(hist) != 2 {
		t.Fatalf("expected ring buffer capped at 2, got %d", len(hist))
	}
	if hist[0].Text != "two" || hist[1].Text != "three" {
		t.Errorf("expected oldest evicted, got %+v", hist)
	}
}

func TestRegisterFileRejectsDuplicateFID(t *testing.T) {
	s := NewSession(t.TempDir(), 10)
	entry := SharedFileEntry{FID: "f1", Filename: "a.txt"}

	if !s.RegisterFile(entry) {
		t.Fatal("expected first registration to succeed")
	}
	if s.RegisterFile(entry) {
		t.Error("expected duplicate fid to be rejected")
	}
}

func TestLookupFileAndFilesList(t *testing.T) {
	s := NewSession(t.TempDir(), 10)
	s.RegisterFile(SharedFileEntry{FID: "f1", Filename: "a.txt", SizeBytes: 10, UploadedAt: time.Now()})

	entry, ok := s.LookupFile("f1")
	if !ok || entry.Filename != "a.txt" {
		t.Errorf("LookupFile: entry=%+v ok=%v", entry, ok)
	}

	list := s.FilesList()
	if _, ok := list["f1"]; !ok {
		t.Error("expected f1 in FilesList")
	}
}

func TestPresenterGrantAndDeny(t *testing.T) {
	s := NewSession(t.TempDir(), 10)

	if !s.RequestPresenter(1) {
		t.Fatal("expected first request to be granted")
	}
	if s.RequestPresenter(2) {
		t.Error("expected second request to be denied while slot is held")
	}
	id, ok := s.Presenter()
	if !ok || id != 1 {
		t.Errorf("expected presenter 1, got %d ok=%v", id, ok)
	}
}

func TestClearPresenterRequiresHolderUnlessForced(t *testing.T) {
	s := NewSession(t.TempDir(), 10)
	s.RequestPresenter(1)

	if s.ClearPresenter(2, false) {
		t.Error("non-holder should not be able to clear the slot")
	}
	if !s.ClearPresenter(1, false) {
		t.Error("holder should be able to clear the slot")
	}
	if _, ok := s.Presenter(); ok {
		t.Error("expected no presenter after clear")
	}
}

func TestClearPresenterForced(t *testing.T) {
	s := NewSession(t.TempDir(), 10)
	s.RequestPresenter(1)

	if !s.ClearPresenter(999, true) {
		t.Error("forced clear should succeed regardless of holder")
	}
}

func TestScanSpoolRegistersRegularFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644)
	os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(dir, "subdir"), 0o755)

	s := NewSession(dir, 10)
	var found []SharedFileEntry
	if err := s.ScanSpool(func(e SharedFileEntry) { found = append(found, e) }); err != nil {
		t.Fatalf("ScanSpool: %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("expected 1 file discovered, got %d: %+v", len(found), found)
	}
	if found[0].Filename != "notes.txt" {
		t.Errorf("expected notes.txt, got %q", found[0].Filename)
	}
}

func TestScanSpoolDoesNotReregisterOnSecondScan(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644)

	s := NewSession(dir, 10)
	s.ScanSpool(func(e SharedFileEntry) {})

	var second []SharedFileEntry
	s.ScanSpool(func(e SharedFileEntry) { second = append(second, e) })
	if len(second) != 0 {
		t.Errorf("expected no rediscovery on second scan, got %d", len(second))
	}
}
