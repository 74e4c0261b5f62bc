package main

import "testing"

type fakeRecorder struct {
	audits []string
	bans   map[string]string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{bans: make(map[string]string)}
}

func (f *fakeRecorder) RecordAudit(actorID uint32, actorName, action, target, detail string) {
	f.audits = append(f.audits, action)
}

func (f *fakeRecorder) RecordBan(name, reason string) { f.bans[name] = reason }

func (f *fakeRecorder) IsBanned(name string) (string, bool) {
	reason, ok := f.bans[name]
	return reason, ok
}

func newTestModerator() (*Moderator, *Registry, *Session, *[]uint32, *fakeRecorder) {
	reg := NewRegistry()
	sess := NewSession("", 10)
	fan := newFanOut(reg)
	rec := newFakeRecorder()
	evicted := &[]uint32{}
	mod := NewModerator(reg, sess, fan, rec, rec, func(id uint32, reason string) {
		*evicted = append(*evicted, id)
	})
	return mod, reg, sess, evicted, rec
}

func TestForceMuteRequiresHost(t *testing.T) {
	mod, reg, _, _, _ := newTestModerator()
	reg.Admit(testParticipant(1, "alice")) // host
	reg.Admit(testParticipant(2, "bob"))

	bob := reg.Lookup(2)
	err := mod.ForceMute(bob, reg.Lookup(1))
	if err != errNotHost {
		t.Errorf("expected errNotHost, got %v", err)
	}
}

func TestForceMuteByHostUpdatesState(t *testing.T) {
	mod, reg, _, _, rec := newTestModerator()
	reg.Admit(testParticipant(1, "alice")) // host
	reg.Admit(testParticipant(2, "bob"))

	host := reg.Lookup(1)
	bob := reg.Lookup(2)
	if err := mod.ForceMute(host, bob); err != nil {
		t.Fatalf("ForceMute: %v", err)
	}
	if bob.MediaState().AudioOn {
		t.Error("expected bob's audio to be forced off")
	}
	if len(rec.audits) != 1 || rec.audits[0] != "force_mute" {
		t.Errorf("expected an audit entry, got %v", rec.audits)
	}
}

func TestSetPermissionRevokingScreenShareStopsPresenting(t *testing.T) {
	mod, reg, sess, _, _ := newTestModerator()
	reg.Admit(testParticipant(1, "alice")) // host
	reg.Admit(testParticipant(2, "bob"))

	host := reg.Lookup(1)
	bob := reg.Lookup(2)
	mod.RequestPresenter(bob)
	if id, ok := sess.Presenter(); !ok || id != bob.ID {
		t.Fatal("expected bob to hold the presenter slot")
	}

	if err := mod.SetPermission(host, bob, "may_screen_share", "false"); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}
	if _, ok := sess.Presenter(); ok {
		t.Error("expected presenter slot cleared after revoking screen share")
	}
	if bob.MediaState().IsPresenter {
		t.Error("expected bob's presenter state cleared")
	}
}

func TestRequestPresenterGrantThenDenyBusy(t *testing.T) {
	mod, reg, sess, _, _ := newTestModerator()
	reg.Admit(testParticipant(1, "alice"))
	reg.Admit(testParticipant(2, "bob"))

	alice := reg.Lookup(1)
	bob := reg.Lookup(2)

	mod.RequestPresenter(alice)
	if id, ok := sess.Presenter(); !ok || id != alice.ID {
		t.Fatal("expected alice granted the presenter slot")
	}

	mod.RequestPresenter(bob)
	if bob.MediaState().IsPresenter {
		t.Error("bob should have been denied while the slot is held")
	}
}

func TestRequestPresenterDeniedWithoutPermission(t *testing.T) {
	mod, reg, sess, _, _ := newTestModerator()
	reg.Admit(testParticipant(1, "alice"))
	alice := reg.Lookup(1)
	alice.setPermissions(func(p *Permissions) { p.MayScreenShare = false })

	mod.RequestPresenter(alice)
	if _, ok := sess.Presenter(); ok {
		t.Error("expected request denied when screen share is not permitted")
	}
}

func TestStopPresentingReleasesSlot(t *testing.T) {
	mod, reg, sess, _, _ := newTestModerator()
	reg.Admit(testParticipant(1, "alice"))
	alice := reg.Lookup(1)

	mod.RequestPresenter(alice)
	mod.StopPresenting(alice)

	if _, ok := sess.Presenter(); ok {
		t.Error("expected slot released after StopPresenting")
	}
}

func TestKickEvictsWithoutBanning(t *testing.T) {
	mod, reg, _, evicted, rec := newTestModerator()
	reg.Admit(testParticipant(1, "alice")) // host
	reg.Admit(testParticipant(2, "bob"))

	if err := mod.Kick(reg.Lookup(1), reg.Lookup(2)); err != nil {
		t.Fatalf("Kick: %v", err)
	}
	if len(*evicted) != 1 || (*evicted)[0] != 2 {
		t.Errorf("expected bob evicted, got %v", *evicted)
	}
	if _, banned := rec.IsBanned("bob"); banned {
		t.Error("kick should not record a ban")
	}
}

func TestSetSlowModeRequiresHost(t *testing.T) {
	mod, reg, sess, _, _ := newTestModerator()
	reg.Admit(testParticipant(1, "alice")) // host
	reg.Admit(testParticipant(2, "bob"))

	err := mod.SetSlowMode(reg.Lookup(2), 30)
	if err != errNotHost {
		t.Errorf("expected errNotHost, got %v", err)
	}
	if sess.SlowMode() != 0 {
		t.Error("expected slow mode to stay disabled when set by a non-host")
	}
}

func TestSetSlowModeByHostUpdatesSession(t *testing.T) {
	mod, reg, sess, _, rec := newTestModerator()
	reg.Admit(testParticipant(1, "alice")) // host

	if err := mod.SetSlowMode(reg.Lookup(1), 20); err != nil {
		t.Fatalf("SetSlowMode: %v", err)
	}
	if got := sess.SlowMode(); got != 20*1e9 {
		t.Errorf("expected a 20s cooldown, got %s", got)
	}
	if len(rec.audits) != 1 || rec.audits[0] != "set_slow_mode" {
		t.Errorf("expected an audit entry, got %v", rec.audits)
	}
}

func TestSetSlowModeNegativeClampsToZero(t *testing.T) {
	mod, reg, sess, _, _ := newTestModerator()
	reg.Admit(testParticipant(1, "alice")) // host

	if err := mod.SetSlowMode(reg.Lookup(1), -5); err != nil {
		t.Fatalf("SetSlowMode: %v", err)
	}
	if sess.SlowMode() != 0 {
		t.Error("expected a negative value to clamp to disabled")
	}
}

func TestBanEvictsAndRecords(t *testing.T) {
	mod, reg, _, evicted, rec := newTestModerator()
	reg.Admit(testParticipant(1, "alice")) // host
	reg.Admit(testParticipant(2, "bob"))

	if err := mod.Ban(reg.Lookup(1), reg.Lookup(2), "spam"); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if len(*evicted) != 1 || (*evicted)[0] != 2 {
		t.Errorf("expected bob evicted, got %v", *evicted)
	}
	reason, banned := rec.IsBanned("bob")
	if !banned || reason != "spam" {
		t.Errorf("expected ban recorded with reason, got reason=%q banned=%v", reason, banned)
	}
}
