package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

// Hub wires every component together and owns the listeners for the
// control channel, the video/audio datagram sockets, and the background
// tasks (liveness, metrics). One Hub is one conferencing session.
type Hub struct {
	cfg  Config
	reg  *Registry
	sess *Session
	fan  *fanOut
	mod  *Moderator
	ft   *FileTransferMediator
	live *LivenessMonitor

	audit AuditRecorder
	bans  BanRecorder

	videoConn *net.UDPConn
	audioConn *net.UDPConn

	heartbeatHard time.Duration

	// localHost is the embedded id-0 "host" participant seeded at
	// construction, matching the reserved-id-0 local operator semantics.
	// It has no socket; drainLocalHost discards whatever is enqueued for it.
	localHost *Participant

	// linkPreviewLimiter caps aggregate link-preview fetches hub-wide,
	// independent of any one participant's control-message rate.
	linkPreviewLimiter *rateLimiter

	shutdownCh chan struct{}
}

func NewHub(cfg Config, audit AuditRecorder, bans BanRecorder) *Hub {
	reg := NewRegistry()
	sess := NewSession(cfg.SpoolDir, cfg.ChatHistorySize)
	fan := newFanOut(reg)
	h := &Hub{cfg: cfg, reg: reg, sess: sess, fan: fan, audit: audit, bans: bans, shutdownCh: make(chan struct{})}
	h.ft = NewFileTransferMediator(cfg.SpoolDir, cfg.BindHost, sess, fan)
	h.mod = NewModerator(reg, sess, fan, audit, bans, h.evict)

	h.localHost = newParticipant(localHostID, "host", RoleHost, nil, discardFrameWriter{}, discardDatagramSender{}, 0)
	reg.Admit(h.localHost)

	if cfg.LinkPreviewMaxPerMinute > 0 {
		h.linkPreviewLimiter = newRateLimiter(cfg.LinkPreviewMaxPerMinute / 60)
	}

	if cfg.SlowModeSeconds > 0 {
		sess.SetSlowMode(cfg.SlowModeSeconds)
	}

	soft := time.Duration(cfg.HeartbeatSoft) * time.Second
	hard := time.Duration(cfg.HeartbeatHard) * time.Second
	h.live = NewLivenessMonitorWithTimeouts(reg, h.evict, soft, hard)
	h.heartbeatHard = hard
	if h.heartbeatHard <= 0 {
		h.heartbeatHard = heartbeatHardTimeout
	}
	return h
}

// Serve starts every listener and blocks until ctx is canceled.
func (h *Hub) Serve(ctx context.Context) error {
	if err := h.sess.ScanSpool(func(e SharedFileEntry) {
		h.fan.FileAvailable(ControlMsg{Type: "file_available", FID: e.FID, Filename: e.Filename, Size: e.SizeBytes, Uploader: e.Uploader})
	}); err != nil {
		log.Printf("transport: initial spool scan failed: %v", err)
	}
	if err := h.sess.WatchSpool(func(e SharedFileEntry) {
		h.fan.FileAvailable(ControlMsg{Type: "file_available", FID: e.FID, Filename: e.Filename, Size: e.SizeBytes, Uploader: e.Uploader})
	}); err != nil {
		log.Printf("transport: spool watch disabled: %v", err)
	}

	controlLn, err := net.Listen("tcp", net.JoinHostPort(h.cfg.BindHost, fmt.Sprint(h.cfg.ControlPort)))
	if err != nil {
		return fmt.Errorf("control listener: %w", err)
	}
	defer controlLn.Close()

	videoConn, err := listenUDPTuned(h.cfg.BindHost, h.cfg.VideoPort)
	if err != nil {
		return fmt.Errorf("video listener: %w", err)
	}
	defer videoConn.Close()
	h.videoConn = videoConn

	audioConn, err := listenUDPTuned(h.cfg.BindHost, h.cfg.AudioPort)
	if err != nil {
		return fmt.Errorf("audio listener: %w", err)
	}
	defer audioConn.Close()
	h.audioConn = audioConn

	go h.live.Run(ctx)
	go h.drainLocalHost(ctx)
	go h.acceptLoop(ctx, controlLn)
	go h.videoLoop(ctx, videoConn)
	go h.audioLoop(ctx, audioConn)

	<-ctx.Done()
	h.broadcastShutdown()
	close(h.shutdownCh)
	h.sess.Close()
	return nil
}

func listenUDPTuned(host string, port int) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	conn.SetReadBuffer(4 << 20)
	conn.SetWriteBuffer(4 << 20)
	return conn, nil
}

func (h *Hub) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("transport: accept error: %v", err)
			continue
		}
		go h.handleControlConn(ctx, conn)
	}
}

// handleControlConn performs the join handshake and then runs the read
// loop and writer loop for one participant's control connection.
func (h *Hub) handleControlConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(controlReadTimeout))
	first, err := readFrame(conn)
	if err != nil {
		return
	}
	if first.Type != "login" {
		writeFrame(conn, ControlMsg{Type: "login_error", Reason: "expected login"})
		return
	}
	name, err := validateName(first.Name)
	if err != nil {
		writeFrame(conn, ControlMsg{Type: "login_error", Reason: err.Error()})
		return
	}
	if h.bans != nil {
		if reason, banned := h.bans.IsBanned(name); banned {
			writeFrame(conn, ControlMsg{Type: "login_error", Reason: "banned: " + reason})
			return
		}
	}
	unique, err := h.reg.UniqueName(name)
	if err != nil {
		writeFrame(conn, ControlMsg{Type: "login_error", Reason: "session full"})
		return
	}
	if h.reg.Count() >= h.cfg.MaxParticipants {
		writeFrame(conn, ControlMsg{Type: "login_error", Reason: "session full"})
		return
	}

	id := h.reg.NextID()
	fw := &connFrameWriter{conn: conn}
	ms := &hubMediaSender{hub: h, id: id}
	p := newParticipant(id, unique, RoleGuest, conn.RemoteAddr(), fw, ms, h.cfg.ControlMsgsPerSecond)
	h.reg.Admit(p)

	writeFrame(conn, ControlMsg{
		Type: "login_success", ClientID: id,
		Participants: h.reg.RosterInfo(),
		ChatHistory:  h.sess.ChatHistory(),
		SharedFiles:  h.sess.FilesList(),
		HostID:       firstHost(h.reg),
	})
	h.fan.Roster(ControlMsg{Type: "user_joined", ID: id, Name: unique})

	writerDone := make(chan struct{})
	go h.writerLoop(ctx, p, conn, writerDone)

	h.readLoop(ctx, p, conn)

	h.evict(id, "disconnected")
	<-writerDone
}

func firstHost(reg *Registry) uint32 {
	id, _ := reg.HostID()
	return id
}

func validateName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("name required")
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("name too long")
	}
	return name, nil
}

func (h *Hub) readLoop(ctx context.Context, p *Participant, conn net.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(h.heartbeatHard))
		msg, err := readFrame(conn)
		if err != nil {
			return
		}
		p.touchHeartbeat()
		if p.rate != nil && !p.rate.Allow() {
			continue
		}
		h.dispatch(p, msg)
		if msg.Type == "logout" {
			return
		}
	}
}

func (h *Hub) writerLoop(ctx context.Context, p *Participant, conn net.Conn, done chan struct{}) {
	defer close(done)
	for {
		for {
			msg, ok := p.outbound.Dequeue()
			if !ok {
				break
			}
			conn.SetWriteDeadline(time.Now().Add(controlWriteHardTimeout))
			if err := writeFrame(conn, msg); err != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		case <-p.outbound.Unhealthy():
			return
		case <-p.outbound.notify:
		}
	}
}

// evict removes a participant from the registry, propagates a host
// transfer and departure broadcast, and unblocks its connection goroutines.
func (h *Hub) evict(id uint32, reason string) {
	p, newHost, hostChanged := h.reg.Remove(id)
	if p == nil {
		return
	}
	// Only clear the presenter slot if the departing participant is the one
	// actually holding it — an unrelated disconnect must not kill someone
	// else's live screen share. A moderator's explicit force_stop_presenting
	// still uses force=true directly against the held id (moderation.go).
	h.sess.ClearPresenter(id, false)
	h.fan.Roster(ControlMsg{Type: "user_left", ID: id, Name: p.Name, Reason: reason})
	if hostChanged {
		if np := h.reg.Lookup(newHost); np != nil {
			h.fan.Notify(newHost, ControlMsg{Type: "host_request", RequestType: "promoted", Message: "you are now host"})
		}
	}
}

func (h *Hub) broadcastShutdown() {
	h.fan.BroadcastControl(ControlMsg{Type: "server_shutdown"})
}

// drainLocalHost discards traffic addressed to the embedded id-0 host: it
// has no connection for a writer loop to flush to, so something still has
// to consume its outbound queue or a broadcast-heavy session would pile up
// messages in it forever.
func (h *Hub) drainLocalHost(ctx context.Context) {
	for {
		for {
			if _, ok := h.localHost.outbound.Dequeue(); !ok {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-h.localHost.outbound.notify:
		}
	}
}

// discardFrameWriter absorbs control messages addressed to the embedded
// local-operator participant; there is no socket behind it to write to.
type discardFrameWriter struct{}

func (discardFrameWriter) WriteFrame(ControlMsg) error { return nil }

// discardDatagramSender absorbs media addressed to the embedded local
// operator the same way.
type discardDatagramSender struct{}

func (discardDatagramSender) SendVideo([]byte) error { return nil }
func (discardDatagramSender) SendAudio([]byte) error { return nil }

// connFrameWriter adapts a net.Conn to the frameWriter interface used by
// Participant; writes are serialized by the single writer goroutine per
// connection, so no extra locking is required here.
type connFrameWriter struct {
	conn net.Conn
}

func (w *connFrameWriter) WriteFrame(msg ControlMsg) error {
	w.conn.SetWriteDeadline(time.Now().Add(controlWriteHardTimeout))
	return writeFrame(w.conn, msg)
}

// hubMediaSender resolves a participant's learned UDP endpoint at send time
// and writes through the hub's shared video/audio sockets.
type hubMediaSender struct {
	hub *Hub
	id  uint32
}

func (s *hubMediaSender) SendVideo(data []byte) error {
	p := s.hub.reg.Lookup(s.id)
	if p == nil {
		return fmt.Errorf("unknown participant")
	}
	addr := p.VideoAddr()
	if addr == nil {
		return fmt.Errorf("no video endpoint learned yet")
	}
	_, err := s.hub.videoConn.WriteTo(data, addr)
	return err
}

func (s *hubMediaSender) SendAudio(data []byte) error {
	p := s.hub.reg.Lookup(s.id)
	if p == nil {
		return fmt.Errorf("unknown participant")
	}
	addr := p.AudioAddr()
	if addr == nil {
		return fmt.Errorf("no audio endpoint learned yet")
	}
	_, err := s.hub.audioConn.WriteTo(data, addr)
	return err
}

// videoLoop is the single receiver loop for the video datagram socket: it
// validates the fixed header, looks the sender up by the header's client_id
// (dropping datagrams for unknown ids or senders without may_video),
// learns/rebinds that participant's endpoint, stamps the looked-up id into
// a copy of the datagram, and hands the copy to the fan-out engine. The
// client_id is not checked against the source endpoint.
func (h *Hub) videoLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		hdr, _, err := decodeVideoHeader(buf[:n])
		if err != nil {
			continue
		}
		p := h.reg.Lookup(hdr.ClientID)
		if p == nil || !p.Permissions().MayVideo {
			continue
		}
		incVideoDatagram()
		p.learnVideoAddr(addr)
		out := make([]byte, n)
		copy(out, buf[:n])
		stampVideoSender(out, hdr.ClientID)
		h.fan.Video(hdr.ClientID, out)
	}
}

func (h *Hub) audioLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		hdr, _, err := decodeAudioHeader(buf[:n])
		if err != nil {
			continue
		}
		p := h.reg.Lookup(hdr.ClientID)
		if p == nil || !p.Permissions().MayAudio {
			continue
		}
		incAudioDatagram()
		p.learnAudioAddr(addr)
		out := make([]byte, n)
		copy(out, buf[:n])
		stampAudioSender(out, hdr.ClientID)
		h.fan.Audio(hdr.ClientID, out)
	}
}
