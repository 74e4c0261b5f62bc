package main

import "testing"

func TestSetActiveParticipantsUpdatesSnapshot(t *testing.T) {
	setActiveParticipants(7)
	if got := MetricsSnapshot().Participants; got != 7 {
		t.Errorf("expected 7 participants in snapshot, got %d", got)
	}
}

func TestNoteFanoutDroppedIncrementsSnapshot(t *testing.T) {
	before := MetricsSnapshot().Dropped
	noteFanoutDropped()
	noteFanoutDropped()
	after := MetricsSnapshot().Dropped
	if after != before+2 {
		t.Errorf("expected dropped counter to increase by 2, got %d -> %d", before, after)
	}
}

func TestNoteFanoutEvictedIncrementsSnapshot(t *testing.T) {
	before := MetricsSnapshot().Evictions
	noteFanoutEvicted()
	after := MetricsSnapshot().Evictions
	if after != before+1 {
		t.Errorf("expected evictions counter to increase by 1, got %d -> %d", before, after)
	}
}

func TestAddFileBytesDoesNotPanic(t *testing.T) {
	addFileBytes("upload", 1024)
	addFileBytes("download", 2048)
}

func TestInitBuildInfoDoesNotPanic(t *testing.T) {
	initBuildInfo("test-version")
}
