package main

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SharedFileEntry is the in-memory index record for one spool file.
type SharedFileEntry struct {
	FID        string
	Filename   string
	SizeBytes  int64
	Uploader   string
	UploaderID string // participant id as string, or "manual"
	Path       string
	UploadedAt time.Time
}

func (e SharedFileEntry) wire() FileEntryWire {
	return FileEntryWire{
		FID:        e.FID,
		Filename:   e.Filename,
		SizeBytes:  e.SizeBytes,
		Uploader:   e.Uploader,
		UploadedAt: e.UploadedAt.UTC().Format(time.RFC3339Nano),
	}
}

// chatEntry is one retained message in the ring buffer.
type chatEntry struct {
	SenderID   uint32
	SenderName string
	Text       string
	At         time.Time
}

func (c chatEntry) wire() ChatEntryWire {
	return ChatEntryWire{
		SenderID:   c.SenderID,
		SenderName: c.SenderName,
		Text:       c.Text,
		Timestamp:  c.At.UTC().Format(time.RFC3339Nano),
	}
}

// Session is the Session State component (C4): the chat ring buffer, the
// shared-file index, the presenter slot, and the spool scanner/watcher.
// None of this is persisted — it is rebuilt from the spool directory and
// from live traffic each run, per the specification's Non-goals.
type Session struct {
	spoolDir string

	chatMu  sync.Mutex
	chat    []chatEntry
	chatCap int

	filesMu sync.RWMutex
	files   map[string]SharedFileEntry

	presenterMu sync.Mutex
	presenterID uint32
	hasPresenter bool
	presenterSince time.Time

	manualSeq atomic.Uint64

	slowModeSeconds atomic.Int64

	watcher *fsnotify.Watcher
	stop    chan struct{}
}

func NewSession(spoolDir string, chatHistorySize int) *Session {
	return &Session{
		spoolDir: spoolDir,
		chatCap:  chatHistorySize,
		files:    make(map[string]SharedFileEntry),
		stop:     make(chan struct{}),
	}
}

// AppendChat records a chat message, evicting the oldest entry once the
// ring buffer exceeds chatCap.
func (s *Session) AppendChat(senderID uint32, senderName, text string) chatEntry {
	e := chatEntry{SenderID: senderID, SenderName: senderName, Text: text, At: time.Now()}
	s.chatMu.Lock()
	s.chat = append(s.chat, e)
	if len(s.chat) > s.chatCap {
		s.chat = s.chat[len(s.chat)-s.chatCap:]
	}
	s.chatMu.Unlock()
	return e
}

// ChatHistory returns the retained messages in wire form, oldest first.
func (s *Session) ChatHistory() []ChatEntryWire {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	out := make([]ChatEntryWire, len(s.chat))
	for i, e := range s.chat {
		out[i] = e.wire()
	}
	return out
}

// RegisterFile adds an entry to the shared-file index. Returns false if the
// fid already exists.
func (s *Session) RegisterFile(e SharedFileEntry) bool {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()
	if _, exists := s.files[e.FID]; exists {
		return false
	}
	s.files[e.FID] = e
	return true
}

func (s *Session) LookupFile(fid string) (SharedFileEntry, bool) {
	s.filesMu.RLock()
	defer s.filesMu.RUnlock()
	e, ok := s.files[fid]
	return e, ok
}

func (s *Session) FilesList() map[string]FileEntryWire {
	s.filesMu.RLock()
	defer s.filesMu.RUnlock()
	out := make(map[string]FileEntryWire, len(s.files))
	for fid, e := range s.files {
		out[fid] = e.wire()
	}
	return out
}

// RequestPresenter grants the slot if empty, denies otherwise.
func (s *Session) RequestPresenter(id uint32) (granted bool) {
	s.presenterMu.Lock()
	defer s.presenterMu.Unlock()
	if s.hasPresenter {
		return false
	}
	s.presenterID = id
	s.hasPresenter = true
	s.presenterSince = time.Now()
	return true
}

// ClearPresenter empties the slot if held by id (or unconditionally if
// force is true, e.g. a host's force_stop_presenting). Returns whether it
// changed.
func (s *Session) ClearPresenter(id uint32, force bool) bool {
	s.presenterMu.Lock()
	defer s.presenterMu.Unlock()
	if !s.hasPresenter {
		return false
	}
	if !force && s.presenterID != id {
		return false
	}
	s.hasPresenter = false
	s.presenterID = 0
	return true
}

func (s *Session) Presenter() (id uint32, ok bool) {
	s.presenterMu.Lock()
	defer s.presenterMu.Unlock()
	return s.presenterID, s.hasPresenter
}

// SetSlowMode sets the hub-wide chat cooldown a host can apply; zero or
// negative disables it.
func (s *Session) SetSlowMode(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	s.slowModeSeconds.Store(int64(seconds))
}

// SlowMode returns the current chat cooldown, zero meaning disabled.
func (s *Session) SlowMode() time.Duration {
	return time.Duration(s.slowModeSeconds.Load()) * time.Second
}

// ScanSpool enumerates the spool directory once, registering any regular
// file not already indexed. newEntry is invoked for each newly discovered
// file so the caller can broadcast file_available.
func (s *Session) ScanSpool(newEntry func(SharedFileEntry)) error {
	entries, err := os.ReadDir(s.spoolDir)
	if err != nil {
		return err
	}
	for _, de := range entries {
		if e, ok := s.considerSpoolEntry(de.Name()); ok {
			newEntry(e)
		}
	}
	return nil
}

func (s *Session) considerSpoolEntry(name string) (SharedFileEntry, bool) {
	if len(name) == 0 || name[0] == '.' {
		return SharedFileEntry{}, false
	}
	full := filepath.Join(s.spoolDir, name)
	fi, err := os.Lstat(full)
	if err != nil || fi.Mode()&os.ModeSymlink != 0 || fi.IsDir() || !fi.Mode().IsRegular() {
		return SharedFileEntry{}, false
	}
	s.filesMu.RLock()
	for _, e := range s.files {
		if e.Path == full {
			s.filesMu.RUnlock()
			return SharedFileEntry{}, false
		}
	}
	s.filesMu.RUnlock()

	fid := "manual_" + itoa64(s.manualSeq.Add(1)) + "_" + name
	e := SharedFileEntry{
		FID: fid, Filename: name, SizeBytes: fi.Size(),
		Uploader: "manual", UploaderID: "manual",
		Path: full, UploadedAt: fi.ModTime(),
	}
	if !s.RegisterFile(e) {
		return SharedFileEntry{}, false
	}
	return e, true
}

func itoa64(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// WatchSpool starts an fsnotify watch on the spool directory, feeding
// Create events through the same sanitize-and-register path as ScanSpool
// so files dropped in out-of-band surface without waiting for the next
// administrative rescan.
func (s *Session) WatchSpool(newEntry func(SharedFileEntry)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.spoolDir); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Create == 0 {
					continue
				}
				if e, ok := s.considerSpoolEntry(filepath.Base(ev.Name)); ok {
					newEntry(e)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("session: spool watch error: %v", err)
			case <-s.stop:
				return
			}
		}
	}()
	return nil
}

func (s *Session) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	if s.watcher != nil {
		s.watcher.Close()
	}
}
