package main

import "testing"

func testParticipant(id uint32, name string) *Participant {
	return newParticipant(id, name, RoleGuest, nil, nil, nil, 0)
}

func TestAdmitFirstParticipantBecomesHost(t *testing.T) {
	reg := NewRegistry()
	p := testParticipant(1, "alice")
	reg.Admit(p)

	if p.Role != RoleHost {
		t.Errorf("expected first participant to be promoted to host, got role %q", p.Role)
	}
	hostID, ok := reg.HostID()
	if !ok || hostID != 1 {
		t.Errorf("expected host id 1, got %d ok=%v", hostID, ok)
	}
}

func TestAdmitSecondParticipantStaysGuest(t *testing.T) {
	reg := NewRegistry()
	reg.Admit(testParticipant(1, "alice"))
	bob := testParticipant(2, "bob")
	reg.Admit(bob)

	if bob.Role != RoleGuest {
		t.Errorf("expected second participant to remain guest, got %q", bob.Role)
	}
}

func TestRemoveNonHostDoesNotChangeHost(t *testing.T) {
	reg := NewRegistry()
	reg.Admit(testParticipant(1, "alice"))
	reg.Admit(testParticipant(2, "bob"))

	_, _, changed := reg.Remove(2)
	if changed {
		t.Error("removing a non-host should not change the host")
	}
	hostID, _ := reg.HostID()
	if hostID != 1 {
		t.Errorf("expected host to remain 1, got %d", hostID)
	}
}

func TestRemoveHostTransfersToLowestRemainingID(t *testing.T) {
	reg := NewRegistry()
	reg.Admit(testParticipant(1, "alice"))
	reg.Admit(testParticipant(5, "bob"))
	reg.Admit(testParticipant(3, "carol"))

	_, newHost, changed := reg.Remove(1)
	if !changed {
		t.Fatal("expected host change")
	}
	if newHost != 3 {
		t.Errorf("expected new host to be lowest remaining id 3, got %d", newHost)
	}
	if !reg.IsHost(3) {
		t.Error("registry should reflect the new host")
	}
}

func TestRemoveLastParticipantLeavesNoHost(t *testing.T) {
	reg := NewRegistry()
	reg.Admit(testParticipant(1, "alice"))

	_, _, changed := reg.Remove(1)
	if changed {
		t.Error("removing the last participant is not a 'host changed' event")
	}
	if _, ok := reg.HostID(); ok {
		t.Error("expected no host once registry is empty")
	}
}

func TestRemoveUnknownIDIsNoop(t *testing.T) {
	reg := NewRegistry()
	reg.Admit(testParticipant(1, "alice"))

	removed, _, changed := reg.Remove(999)
	if removed != nil || changed {
		t.Error("removing an unknown id should be a no-op")
	}
}

func TestUniqueNameDisambiguates(t *testing.T) {
	reg := NewRegistry()
	reg.Admit(testParticipant(1, "alice"))

	name, err := reg.UniqueName("alice")
	if err != nil {
		t.Fatalf("UniqueName: %v", err)
	}
	if name != "alice (2)" {
		t.Errorf("expected %q, got %q", "alice (2)", name)
	}
}

func TestUniqueNamePassesThroughWhenFree(t *testing.T) {
	reg := NewRegistry()
	name, err := reg.UniqueName("alice")
	if err != nil {
		t.Fatalf("UniqueName: %v", err)
	}
	if name != "alice" {
		t.Errorf("expected unchanged name, got %q", name)
	}
}

func TestNextIDMonotonic(t *testing.T) {
	reg := NewRegistry()
	a := reg.NextID()
	b := reg.NextID()
	if b <= a {
		t.Errorf("expected increasing ids, got %d then %d", a, b)
	}
}

func TestRosterInfoSortedByID(t *testing.T) {
	reg := NewRegistry()
	reg.Admit(testParticipant(5, "bob"))
	reg.Admit(testParticipant(1, "alice"))
	reg.Admit(testParticipant(3, "carol"))

	roster := reg.RosterInfo()
	if len(roster) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(roster))
	}
	for i := 1; i < len(roster); i++ {
		if roster[i-1].ID > roster[i].ID {
			t.Errorf("roster not sorted: %+v", roster)
		}
	}
}

func TestCountReflectsAdmitAndRemove(t *testing.T) {
	reg := NewRegistry()
	if reg.Count() != 0 {
		t.Fatal("expected empty registry")
	}
	reg.Admit(testParticipant(1, "alice"))
	if reg.Count() != 1 {
		t.Errorf("expected 1, got %d", reg.Count())
	}
	reg.Remove(1)
	if reg.Count() != 0 {
		t.Errorf("expected 0 after removal, got %d", reg.Count())
	}
}
