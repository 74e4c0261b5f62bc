package main

import (
	"context"
	"encoding/binary"
	"log"
	"math"
	"net"
	"time"
)

// RunTestClient connects to the hub as an ordinary participant and emits
// synthetic video and audio datagrams on a fixed cadence, so the datagram
// path can be exercised without a real capture device. It logs in over the
// control channel, then streams until ctx is canceled.
func RunTestClient(ctx context.Context, cfg Config, name string) {
	controlAddr := net.JoinHostPort(loopbackHost(cfg.BindHost), itoaInt(cfg.ControlPort))
	conn, err := net.Dial("tcp", controlAddr)
	if err != nil {
		log.Printf("[testclient] dial control: %v", err)
		return
	}
	defer conn.Close()

	if err := writeFrame(conn, ControlMsg{Type: "login", Name: name}); err != nil {
		log.Printf("[testclient] login: %v", err)
		return
	}
	resp, err := readFrame(conn)
	if err != nil || resp.Type != "login_success" {
		log.Printf("[testclient] login rejected: %+v err=%v", resp, err)
		return
	}
	id := resp.ClientID
	log.Printf("[testclient] %q connected as client %d", name, id)

	videoConn, err := net.Dial("udp", net.JoinHostPort(loopbackHost(cfg.BindHost), itoaInt(cfg.VideoPort)))
	if err != nil {
		log.Printf("[testclient] dial video: %v", err)
		return
	}
	defer videoConn.Close()
	audioConn, err := net.Dial("udp", net.JoinHostPort(loopbackHost(cfg.BindHost), itoaInt(cfg.AudioPort)))
	if err != nil {
		log.Printf("[testclient] dial audio: %v", err)
		return
	}
	defer audioConn.Close()

	go drainControl(ctx, conn)

	videoTicker := time.NewTicker(100 * time.Millisecond)
	defer videoTicker.Stop()
	audioTicker := time.NewTicker(20 * time.Millisecond)
	defer audioTicker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	var videoSeq uint32
	var audioClock uint32
	frame := make([]byte, 256)
	tone := make([]byte, 160)

	for {
		select {
		case <-ctx.Done():
			writeFrame(conn, ControlMsg{Type: "logout", ClientID: id})
			return
		case <-heartbeat.C:
			if err := writeFrame(conn, ControlMsg{Type: "heartbeat", ClientID: id}); err != nil {
				return
			}
		case <-videoTicker.C:
			fillPattern(frame, byte(videoSeq))
			dgram := encodeVideoDatagram(videoHeader{ClientID: id, Sequence: videoSeq, FrameSize: uint32(len(frame))}, frame)
			videoConn.Write(dgram)
			videoSeq++
		case <-audioTicker.C:
			fillTone(tone, audioClock)
			dgram := encodeAudioDatagram(audioHeader{ClientID: id, Timestamp: audioClock}, tone)
			audioConn.Write(dgram)
			audioClock += 160
		}
	}
}

// drainControl discards incoming control frames so the connection's
// outbound queue never backs up waiting on a reader.
func drainControl(ctx context.Context, conn net.Conn) {
	for {
		if _, err := readFrame(conn); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// fillPattern writes a deterministic, cheaply distinguishable byte pattern
// so a receiver can confirm frames arrive in order without a real codec.
func fillPattern(buf []byte, seed byte) {
	for i := range buf {
		buf[i] = seed + byte(i)
	}
}

// fillTone synthesizes a 16-bit PCM sine wave at 440 Hz, 8kHz sample rate.
func fillTone(buf []byte, startSample uint32) {
	const sampleRate = 8000
	const freq = 440.0
	for i := 0; i+1 < len(buf); i += 2 {
		sampleIdx := startSample + uint32(i/2)
		v := math.Sin(2 * math.Pi * freq * float64(sampleIdx) / sampleRate)
		binary.BigEndian.PutUint16(buf[i:i+2], uint16(int16(v*32767)))
	}
}

func loopbackHost(bind string) string {
	if bind == "0.0.0.0" || bind == "" {
		return "127.0.0.1"
	}
	return bind
}

func itoaInt(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
