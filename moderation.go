package main

import (
	"fmt"
)

// AuditRecorder persists a moderation action; failures are logged, never
// surfaced to the participant who triggered the action (the administrative
// store is diagnostic, not authoritative for session correctness).
type AuditRecorder interface {
	RecordAudit(actorID uint32, actorName, action, target, detail string)
}

// BanRecorder persists a ban so the name cannot rejoin after a restart.
type BanRecorder interface {
	RecordBan(name, reason string)
	IsBanned(name string) (reason string, banned bool)
}

// Moderator is the Moderation & Presenter FSM component (C6): validates
// host-only commands, applies forced state to the registry, notifies the
// affected participant, broadcasts a compact update, and appends an audit
// row for every state-mutating command.
type Moderator struct {
	reg    *Registry
	sess   *Session
	fan    *fanOut
	audit  AuditRecorder
	bans   BanRecorder
	evict  func(id uint32, reason string)
}

func NewModerator(reg *Registry, sess *Session, fan *fanOut, audit AuditRecorder, bans BanRecorder, evict func(id uint32, reason string)) *Moderator {
	return &Moderator{reg: reg, sess: sess, fan: fan, audit: audit, bans: bans, evict: evict}
}

var errNotHost = fmt.Errorf("permission_error: host-only command")

func (m *Moderator) requireHost(actor *Participant) error {
	if !m.reg.IsHost(actor.ID) {
		return errNotHost
	}
	return nil
}

func (m *Moderator) mediaStateBroadcast(id uint32, state MediaState) {
	m.fan.Roster(ControlMsg{
		Type: "media_state", ID: id,
		VideoOn: boolPtr(state.VideoOn), AudioOn: boolPtr(state.AudioOn),
	})
}

// ForceMute mutes one participant's audio; ForceMuteAll mutes everyone else.
func (m *Moderator) ForceMute(actor, target *Participant) error {
	if err := m.requireHost(actor); err != nil {
		return err
	}
	state := target.setMediaState(func(s *MediaState) { s.AudioOn = false })
	m.fan.Notify(target.ID, ControlMsg{Type: "force_mute", TargetClient: u32Ptr(target.ID)})
	m.mediaStateBroadcast(target.ID, state)
	m.recordAudit(actor, "force_mute", target.Name, "")
	return nil
}

func (m *Moderator) ForceMuteAll(actor *Participant) error {
	if err := m.requireHost(actor); err != nil {
		return err
	}
	for _, p := range m.reg.Snapshot() {
		if p.ID == actor.ID {
			continue
		}
		state := p.setMediaState(func(s *MediaState) { s.AudioOn = false })
		m.fan.Notify(p.ID, ControlMsg{Type: "force_mute", TargetClient: u32Ptr(p.ID)})
		m.mediaStateBroadcast(p.ID, state)
	}
	m.recordAudit(actor, "force_mute_all", "all", "")
	return nil
}

func (m *Moderator) ForceVideoOff(actor, target *Participant) error {
	if err := m.requireHost(actor); err != nil {
		return err
	}
	state := target.setMediaState(func(s *MediaState) { s.VideoOn = false })
	m.fan.Notify(target.ID, ControlMsg{Type: "force_video_off", TargetClient: u32Ptr(target.ID)})
	m.mediaStateBroadcast(target.ID, state)
	m.recordAudit(actor, "force_video_off", target.Name, "")
	return nil
}

func (m *Moderator) ForceVideoOffAll(actor *Participant) error {
	if err := m.requireHost(actor); err != nil {
		return err
	}
	for _, p := range m.reg.Snapshot() {
		if p.ID == actor.ID {
			continue
		}
		state := p.setMediaState(func(s *MediaState) { s.VideoOn = false })
		m.fan.Notify(p.ID, ControlMsg{Type: "force_video_off", TargetClient: u32Ptr(p.ID)})
		m.mediaStateBroadcast(p.ID, state)
	}
	m.recordAudit(actor, "force_video_off_all", "all", "")
	return nil
}

// ForceStopPresenting clears the presenter slot regardless of who holds it.
func (m *Moderator) ForceStopPresenting(actor *Participant) error {
	if err := m.requireHost(actor); err != nil {
		return err
	}
	id, ok := m.sess.Presenter()
	if !ok {
		return nil
	}
	m.sess.ClearPresenter(id, true)
	if p := m.reg.Lookup(id); p != nil {
		p.setMediaState(func(s *MediaState) { s.IsPresenter = false; s.ScreenSharing = false })
		m.fan.Notify(id, ControlMsg{Type: "force_stop_presenting"})
	}
	m.fan.PresenterChanged(ControlMsg{Type: "presenter_changed"})
	m.recordAudit(actor, "force_stop_presenting", "presenter", "")
	return nil
}

// SetPermission flips one permission field on target.
func (m *Moderator) SetPermission(actor, target *Participant, field, value string) error {
	if err := m.requireHost(actor); err != nil {
		return err
	}
	on := value == "true" || value == "1"
	target.setPermissions(func(p *Permissions) {
		switch field {
		case "may_video":
			p.MayVideo = on
		case "may_audio":
			p.MayAudio = on
		case "may_screen_share":
			p.MayScreenShare = on
		case "may_chat":
			p.MayChat = on
		case "may_upload":
			p.MayUpload = on
		case "may_download":
			p.MayDownload = on
		}
	})
	if field == "may_screen_share" && !on {
		if id, ok := m.sess.Presenter(); ok && id == target.ID {
			m.sess.ClearPresenter(id, true)
			target.setMediaState(func(s *MediaState) { s.IsPresenter = false; s.ScreenSharing = false })
			m.fan.Notify(target.ID, ControlMsg{Type: "force_stop_presenting"})
			m.fan.PresenterChanged(ControlMsg{Type: "presenter_changed"})
		}
	}
	m.recordAudit(actor, "set_permission", target.Name, fmt.Sprintf("%s=%s", field, value))
	return nil
}

// SetSlowMode sets the hub-wide chat cooldown and broadcasts the new value
// so clients can reflect it in their composer UI.
func (m *Moderator) SetSlowMode(actor *Participant, seconds int) error {
	if err := m.requireHost(actor); err != nil {
		return err
	}
	if seconds < 0 {
		seconds = 0
	}
	m.sess.SetSlowMode(seconds)
	m.fan.BroadcastControl(ControlMsg{Type: "slow_mode_changed", SlowModeSeconds: seconds})
	m.recordAudit(actor, "set_slow_mode", "channel", fmt.Sprintf("%ds", seconds))
	return nil
}

// HostRequest is non-forcing: it only shows a client-side prompt.
func (m *Moderator) HostRequest(actor, target *Participant, requestType, message string) error {
	if err := m.requireHost(actor); err != nil {
		return err
	}
	m.fan.Notify(target.ID, ControlMsg{Type: "host_request", RequestType: requestType, Message: message})
	return nil
}

// Kick evicts target without banning the name.
func (m *Moderator) Kick(actor, target *Participant) error {
	if err := m.requireHost(actor); err != nil {
		return err
	}
	m.recordAudit(actor, "kick", target.Name, "")
	m.evict(target.ID, "kicked")
	return nil
}

// Ban evicts target and additionally records a ban so the name cannot
// rejoin until administratively lifted.
func (m *Moderator) Ban(actor, target *Participant, reason string) error {
	if err := m.requireHost(actor); err != nil {
		return err
	}
	if m.bans != nil {
		m.bans.RecordBan(target.Name, reason)
	}
	m.recordAudit(actor, "ban", target.Name, reason)
	m.evict(target.ID, "banned")
	return nil
}

// RequestPresenter implements the presenter arbitration state machine: the
// first requester while the slot is empty is granted; later requesters are
// denied as busy. A target losing may_screen_share is force-stopped
// elsewhere (SetPermission), not here.
func (m *Moderator) RequestPresenter(requester *Participant) {
	if !requester.Permissions().MayScreenShare {
		m.fan.Notify(requester.ID, ControlMsg{Type: "presenter_denied", Reason: "not_permitted"})
		return
	}
	if !m.sess.RequestPresenter(requester.ID) {
		m.fan.Notify(requester.ID, ControlMsg{Type: "presenter_denied", Reason: "busy"})
		return
	}
	requester.setMediaState(func(s *MediaState) { s.IsPresenter = true; s.ScreenSharing = true })
	m.fan.Notify(requester.ID, ControlMsg{Type: "presenter_granted"})
	m.fan.PresenterChanged(ControlMsg{Type: "presenter_changed", PresenterID: u32Ptr(requester.ID)})
}

// StopPresenting releases the slot voluntarily; a no-op if id doesn't hold it.
func (m *Moderator) StopPresenting(p *Participant) {
	if !m.sess.ClearPresenter(p.ID, false) {
		return
	}
	p.setMediaState(func(s *MediaState) { s.IsPresenter = false; s.ScreenSharing = false })
	m.fan.PresenterChanged(ControlMsg{Type: "presenter_changed"})
}

func (m *Moderator) recordAudit(actor *Participant, action, target, detail string) {
	if m.audit == nil {
		return
	}
	m.audit.RecordAudit(actor.ID, actor.Name, action, target, detail)
}
