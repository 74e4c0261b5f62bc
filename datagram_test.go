package main

import "testing"

func TestVideoDatagramRoundTrip(t *testing.T) {
	payload := []byte("fake-h264-nalu")
	encoded := encodeVideoDatagram(videoHeader{ClientID: 7, Sequence: 99, FrameSize: uint32(len(payload))}, payload)

	h, got, err := decodeVideoHeader(encoded)
	if err != nil {
		t.Fatalf("decodeVideoHeader: %v", err)
	}
	if h.ClientID != 7 || h.Sequence != 99 || h.FrameSize != uint32(len(payload)) {
		t.Errorf("header mismatch: %+v", h)
	}
	if string(got) != string(payload) {
		t.Errorf("payload mismatch: %q", got)
	}
}

func TestDecodeVideoHeaderTooShort(t *testing.T) {
	_, _, err := decodeVideoHeader([]byte{1, 2, 3})
	if err != errDatagramTooShort {
		t.Errorf("expected errDatagramTooShort, got %v", err)
	}
}

func TestDecodeVideoHeaderClaimedFrameSizeExceedsPayload(t *testing.T) {
	encoded := encodeVideoDatagram(videoHeader{ClientID: 1, Sequence: 1, FrameSize: 100}, []byte("short"))
	_, _, err := decodeVideoHeader(encoded)
	if err != errDatagramTooShort {
		t.Errorf("expected errDatagramTooShort for inflated frame_size, got %v", err)
	}
}

func TestDecodeVideoHeaderTooLarge(t *testing.T) {
	oversized := make([]byte, maxDatagramSize+1)
	_, _, err := decodeVideoHeader(oversized)
	if err != errDatagramTooLarge {
		t.Errorf("expected errDatagramTooLarge, got %v", err)
	}
}

func TestStampVideoSenderOverwritesClientID(t *testing.T) {
	encoded := encodeVideoDatagram(videoHeader{ClientID: 1, Sequence: 1, FrameSize: 0}, nil)
	stampVideoSender(encoded, 42)

	h, _, err := decodeVideoHeader(encoded)
	if err != nil {
		t.Fatalf("decodeVideoHeader: %v", err)
	}
	if h.ClientID != 42 {
		t.Errorf("expected stamped client id 42, got %d", h.ClientID)
	}
}

func TestAudioDatagramRoundTrip(t *testing.T) {
	payload := []byte("fake-opus-frame")
	encoded := encodeAudioDatagram(audioHeader{ClientID: 4, Timestamp: 1600}, payload)

	h, got, err := decodeAudioHeader(encoded)
	if err != nil {
		t.Fatalf("decodeAudioHeader: %v", err)
	}
	if h.ClientID != 4 || h.Timestamp != 1600 {
		t.Errorf("header mismatch: %+v", h)
	}
	if string(got) != string(payload) {
		t.Errorf("payload mismatch: %q", got)
	}
}

func TestDecodeAudioHeaderTooShort(t *testing.T) {
	_, _, err := decodeAudioHeader([]byte{1, 2})
	if err != errDatagramTooShort {
		t.Errorf("expected errDatagramTooShort, got %v", err)
	}
}

func TestStampAudioSenderOverwritesClientID(t *testing.T) {
	encoded := encodeAudioDatagram(audioHeader{ClientID: 1, Timestamp: 0}, []byte("x"))
	stampAudioSender(encoded, 9)

	h, _, err := decodeAudioHeader(encoded)
	if err != nil {
		t.Fatalf("decodeAudioHeader: %v", err)
	}
	if h.ClientID != 9 {
		t.Errorf("expected stamped client id 9, got %d", h.ClientID)
	}
}
