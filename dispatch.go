package main

import (
	"errors"
	"log"
	"sync/atomic"
	"time"
)

var chatMsgSeq atomic.Uint64

var errChatNotAllowed = errors.New("permission_error: chat not allowed")
var errChatTooLong = errors.New("permission_error: chat message exceeds maximum length")
var errChatSlowMode = errors.New("permission_error: slow mode cooldown in effect")

const chatTimeLayout = time.RFC3339Nano

// dispatch applies one inbound control message from an authenticated
// participant. Protocol errors are handled by readFrame/the caller; this
// layer only deals with policy and application semantics.
func (h *Hub) dispatch(p *Participant, msg ControlMsg) {
	switch msg.Type {
	case "heartbeat", "login":
		// heartbeat already touched the clock in readLoop; a stray login
		// after handshake is ignored rather than treated as fatal.

	case "logout":
		// handled by the caller, which tears the connection down.

	case "chat":
		h.handleChat(p, msg)

	case "media_state":
		h.handleMediaState(p, msg)

	case "request_presenter":
		h.mod.RequestPresenter(p)

	case "stop_presenting":
		h.mod.StopPresenting(p)

	case "screen_frame":
		h.handleScreenFrame(p, msg)

	case "force_mute":
		h.withTarget(p, msg, h.mod.ForceMute)
	case "force_mute_all":
		if err := h.mod.ForceMuteAll(p); err != nil {
			h.permissionError(p, err)
		}
	case "force_video_off":
		h.withTarget(p, msg, h.mod.ForceVideoOff)
	case "force_video_off_all":
		if err := h.mod.ForceVideoOffAll(p); err != nil {
			h.permissionError(p, err)
		}
	case "force_stop_presenting", "force_stop_screen_sharing":
		if err := h.mod.ForceStopPresenting(p); err != nil {
			h.permissionError(p, err)
		}
	case "host_request":
		h.handleHostRequest(p, msg)
	case "set_permission":
		h.handleSetPermission(p, msg)
	case "set_slow_mode":
		if err := h.mod.SetSlowMode(p, msg.SlowModeSeconds); err != nil {
			h.permissionError(p, err)
		}
	case "kick":
		h.withTargetID(p, msg.Target, h.mod.Kick)
	case "ban":
		if target := h.reg.Lookup(msg.Target); target != nil {
			if err := h.mod.Ban(p, target, msg.Reason); err != nil {
				h.permissionError(p, err)
			}
		}

	case "file_offer":
		h.handleFileOffer(p, msg)
	case "file_request":
		h.handleFileRequest(p, msg)
	case "get_files_list":
		h.fan.Notify(p.ID, ControlMsg{Type: "files_list_update", SharedFiles: h.sess.FilesList()})

	default:
		log.Printf("dispatch: participant %d sent unknown control type %q, ignoring", p.ID, msg.Type)
	}
}

func (h *Hub) permissionError(p *Participant, err error) {
	h.fan.Notify(p.ID, ControlMsg{Type: "permission_error", Message: err.Error()})
}

func (h *Hub) withTarget(actor *Participant, msg ControlMsg, apply func(*Participant, *Participant) error) {
	if msg.TargetClient == nil {
		return
	}
	h.withTargetID(actor, *msg.TargetClient, apply)
}

func (h *Hub) withTargetID(actor *Participant, targetID uint32, apply func(*Participant, *Participant) error) {
	target := h.reg.Lookup(targetID)
	if target == nil {
		return
	}
	if err := apply(actor, target); err != nil {
		h.permissionError(actor, err)
	}
}

func (h *Hub) handleChat(p *Participant, msg ControlMsg) {
	if !p.Permissions().MayChat {
		h.permissionError(p, errChatNotAllowed)
		return
	}
	if len(msg.Text) > maxChatBytes {
		h.permissionError(p, errChatTooLong)
		return
	}
	if cooldown := h.sess.SlowMode(); cooldown > 0 && !p.checkChatCooldown(cooldown) {
		h.permissionError(p, errChatSlowMode)
		return
	}
	text := msg.Text
	entry := h.sess.AppendChat(p.ID, p.Name, text)
	out := ControlMsg{Type: "chat", SenderID: p.ID, SenderName: p.Name, Text: text, Timestamp: entry.At.UTC().Format(chatTimeLayout)}
	h.fan.Chat(p.ID, out)

	if !h.cfg.LinkPreviewEnable {
		return
	}
	if url := extractFirstURL(text); url != "" {
		msgID := chatMsgSeq.Add(1)
		go h.fetchAndBroadcastPreview(msgID, url)
	}
}

func (h *Hub) fetchAndBroadcastPreview(msgID uint64, url string) {
	lp, err := fetchLinkPreviewLimited(h.linkPreviewLimiter, url)
	if err != nil {
		return
	}
	h.fan.Roster(ControlMsg{
		Type: "link_preview", MsgID: msgID,
		LinkURL: lp.URL, LinkTitle: lp.Title, LinkDesc: lp.Desc,
		LinkImage: lp.Image, LinkSite: lp.SiteName,
	})
}

func (h *Hub) handleMediaState(p *Participant, msg ControlMsg) {
	state := p.setMediaState(func(s *MediaState) {
		if msg.VideoOn != nil {
			s.VideoOn = *msg.VideoOn && p.Permissions().MayVideo
		}
		if msg.AudioOn != nil {
			s.AudioOn = *msg.AudioOn && p.Permissions().MayAudio
		}
	})
	h.mod.mediaStateBroadcast(p.ID, state)
}

func (h *Hub) handleScreenFrame(p *Participant, msg ControlMsg) {
	id, ok := h.sess.Presenter()
	if !ok || id != p.ID {
		return
	}
	h.fan.ScreenFrame(p.ID, ControlMsg{Type: "screen_frame", FrameData: msg.FrameData})
}

func (h *Hub) handleHostRequest(p *Participant, msg ControlMsg) {
	if msg.TargetClient == nil {
		return
	}
	h.withTargetID(p, *msg.TargetClient, func(actor, target *Participant) error {
		return h.mod.HostRequest(actor, target, msg.RequestType, msg.Message)
	})
}

func (h *Hub) handleSetPermission(p *Participant, msg ControlMsg) {
	h.withTargetID(p, msg.Target, func(actor, target *Participant) error {
		return h.mod.SetPermission(actor, target, msg.Field, msg.Value)
	})
}

func (h *Hub) handleFileOffer(p *Participant, msg ControlMsg) {
	fid, port, err := h.ft.Offer(p, msg.FID, msg.Filename, msg.Size)
	if err != nil {
		h.fan.Notify(p.ID, ControlMsg{Type: "file_error", FID: msg.FID, Reason: err.Error()})
		return
	}
	h.fan.Notify(p.ID, ControlMsg{Type: "file_upload_port", FID: fid, Port: port})
}

func (h *Hub) handleFileRequest(p *Participant, msg ControlMsg) {
	port, size, err := h.ft.Request(p, msg.FID)
	if err != nil {
		h.fan.Notify(p.ID, ControlMsg{Type: "file_error", FID: msg.FID, Reason: err.Error()})
		return
	}
	h.fan.Notify(p.ID, ControlMsg{Type: "file_download_port", FID: msg.FID, Port: port, Size: size})
}
