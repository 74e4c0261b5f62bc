package main

import "testing"

func TestValidateNameRejectsEmpty(t *testing.T) {
	if _, err := validateName(""); err == nil {
		t.Fatal("expected an empty name to be rejected")
	}
}

func TestValidateNameRejectsTooLong(t *testing.T) {
	long := make([]byte, maxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := validateName(string(long)); err == nil {
		t.Fatal("expected an over-length name to be rejected")
	}
}

func TestValidateNameAcceptsPlainName(t *testing.T) {
	name, err := validateName("alice")
	if err != nil {
		t.Fatalf("validateName: %v", err)
	}
	if name != "alice" {
		t.Errorf("expected unchanged name, got %q", name)
	}
}

func TestFirstHostReturnsZeroWhenEmpty(t *testing.T) {
	reg := NewRegistry()
	if firstHost(reg) != 0 {
		t.Error("expected firstHost to be 0 for an empty registry")
	}
}

func TestFirstHostReturnsAdmittedHost(t *testing.T) {
	reg := NewRegistry()
	reg.Admit(testParticipant(1, "alice"))
	if firstHost(reg) != 1 {
		t.Errorf("expected first admitted participant to be host, got %d", firstHost(reg))
	}
}

func TestEvictOnUnknownIDIsNoop(t *testing.T) {
	h := newTestHub()
	h.evict(999, "disconnected")
}

func TestEvictRemovesAndBroadcastsDeparture(t *testing.T) {
	h := newTestHub()
	alice := testParticipant(1, "alice")
	h.reg.Admit(alice)
	bob := testParticipant(2, "bob")
	h.reg.Admit(bob)

	h.evict(2, "disconnected")

	if h.reg.Lookup(2) != nil {
		t.Error("expected evicted participant removed from registry")
	}
	msgs := drainOutbound(alice)
	found := false
	for _, m := range msgs {
		if m.Type == "user_left" && m.ID == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a user_left broadcast, got %+v", msgs)
	}
}

func TestNewHubSeedsEmbeddedHostAtIDZero(t *testing.T) {
	h := newTestHub()
	hostID, ok := h.reg.HostID()
	if !ok || hostID != localHostID {
		t.Fatalf("expected the embedded host at id %d, got %d ok=%v", localHostID, hostID, ok)
	}
	if p := h.reg.Lookup(localHostID); p == nil || p.Name != "host" {
		t.Fatalf("expected a local host participant named %q, got %+v", "host", p)
	}
}

func TestEvictNonHostDoesNotTransferFromEmbeddedHost(t *testing.T) {
	h := newTestHub()
	alice := testParticipant(1, "alice")
	h.reg.Admit(alice)

	h.evict(1, "disconnected")

	if !h.reg.IsHost(localHostID) {
		t.Fatal("expected the embedded host to remain host after an unrelated departure")
	}
}

func TestEvictEmbeddedHostTransfersToLowestRemainingID(t *testing.T) {
	h := newTestHub()
	alice := testParticipant(1, "alice")
	h.reg.Admit(alice)
	bob := testParticipant(2, "bob")
	h.reg.Admit(bob)

	h.evict(localHostID, "disconnected")

	if !h.reg.IsHost(1) {
		t.Fatal("expected alice (lowest remaining id) to become host")
	}
	msgs := drainOutbound(alice)
	found := false
	for _, m := range msgs {
		if m.Type == "host_request" && m.RequestType == "promoted" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected alice to be notified of promotion, got %+v", msgs)
	}
}

func TestBroadcastShutdownNotifiesEveryone(t *testing.T) {
	h := newTestHub()
	alice := testParticipant(1, "alice")
	h.reg.Admit(alice)

	h.broadcastShutdown()

	msgs := drainOutbound(alice)
	if len(msgs) != 1 || msgs[0].Type != "server_shutdown" {
		t.Fatalf("expected a server_shutdown message, got %+v", msgs)
	}
}

func TestHubMediaSenderFailsForUnlearnedEndpoint(t *testing.T) {
	h := newTestHub()
	alice := testParticipant(1, "alice")
	h.reg.Admit(alice)

	ms := &hubMediaSender{hub: h, id: 1}
	if err := ms.SendVideo([]byte("x")); err == nil {
		t.Error("expected an error when no video endpoint has been learned yet")
	}
	if err := ms.SendAudio([]byte("x")); err == nil {
		t.Error("expected an error when no audio endpoint has been learned yet")
	}
}

func TestHubMediaSenderFailsForUnknownParticipant(t *testing.T) {
	h := newTestHub()
	ms := &hubMediaSender{hub: h, id: 999}
	if err := ms.SendVideo([]byte("x")); err == nil {
		t.Error("expected an error for an unknown participant")
	}
}
