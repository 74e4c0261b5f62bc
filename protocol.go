package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ControlMsg is the tagged record carried by the reliable control channel.
// Every message carries Type and Timestamp; the remaining fields are
// populated according to Type (see the message catalog). Unknown fields
// coming from a peer are ignored by encoding/json, and an unknown Type is
// tolerated by the dispatcher rather than closing the connection.
type ControlMsg struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`

	// login / login_success / login_error
	Name         string            `json:"name,omitempty"`
	ClientID     uint32            `json:"client_id,omitempty"`
	Participants []ParticipantInfo `json:"participants,omitempty"`
	ChatHistory  []ChatEntryWire   `json:"chat_history,omitempty"`
	SharedFiles  map[string]FileEntryWire `json:"shared_files,omitempty"`
	HostID       uint32            `json:"host_id,omitempty"`
	Reason       string            `json:"reason,omitempty"`

	// roster
	ID uint32 `json:"id,omitempty"`

	// chat
	Text       string `json:"text,omitempty"`
	SenderID   uint32 `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`

	// media_state
	VideoOn  *bool `json:"video_on,omitempty"`
	AudioOn  *bool `json:"audio_on,omitempty"`

	// presenter arbitration
	PresenterID *uint32 `json:"presenter_id,omitempty"`

	// screen_frame
	FrameData []byte `json:"frame_data,omitempty"`

	// moderation
	TargetClient *uint32 `json:"target_client,omitempty"`
	RequestType  string  `json:"request_type,omitempty"`
	Message      string  `json:"message,omitempty"`
	Field        string  `json:"field,omitempty"`
	Value        string  `json:"value,omitempty"`
	Target       uint32  `json:"target,omitempty"`

	// file transfer
	FID      string `json:"fid,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Port     int    `json:"port,omitempty"`
	Uploader string `json:"uploader,omitempty"`

	// link preview (chat enrichment)
	MsgID     uint64 `json:"msg_id,omitempty"`
	LinkURL   string `json:"link_url,omitempty"`
	LinkTitle string `json:"link_title,omitempty"`
	LinkDesc  string `json:"link_desc,omitempty"`
	LinkImage string `json:"link_image,omitempty"`
	LinkSite  string `json:"link_site,omitempty"`

	// set_slow_mode / slow_mode_changed
	SlowModeSeconds int `json:"slow_mode_seconds,omitempty"`
}

// ParticipantInfo is the roster snapshot shared with clients.
type ParticipantInfo struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// ChatEntryWire mirrors a retained chat message for login_success replay.
type ChatEntryWire struct {
	SenderID   uint32 `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	Timestamp  string `json:"timestamp"`
}

// FileEntryWire mirrors a shared-file index entry for the wire.
type FileEntryWire struct {
	FID        string `json:"fid"`
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"size_bytes"`
	Uploader   string `json:"uploader_name"`
	UploadedAt string `json:"uploaded_at"`
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// writeFrame encodes msg as a length-prefixed control frame and writes it to w.
// The length prefix is the only synchronization point on the wire.
func writeFrame(w io.Writer, msg ControlMsg) error {
	if msg.Timestamp == "" {
		msg.Timestamp = nowISO()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode control frame: %w", err)
	}
	if len(payload) > maxControlFrame {
		return fmt.Errorf("control frame too large: %d bytes", len(payload))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// readFrame reads one length-prefixed control frame from r and decodes it.
// A declared length exceeding maxControlFrame is a protocol error; the
// caller is expected to close the connection on any error from readFrame.
func readFrame(r io.Reader) (ControlMsg, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return ControlMsg{}, err
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length > maxControlFrame {
		return ControlMsg{}, fmt.Errorf("control frame declares %d bytes, exceeds %d limit", length, maxControlFrame)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return ControlMsg{}, err
	}
	var msg ControlMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ControlMsg{}, fmt.Errorf("decode control frame: %w", err)
	}
	return msg, nil
}

func boolPtr(b bool) *bool     { return &b }
func u32Ptr(v uint32) *uint32  { return &v }
