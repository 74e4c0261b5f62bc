package main

import (
	"encoding/binary"
	"errors"
)

// errDatagramTooShort/errDatagramTooLarge classify datagram validation
// failures; callers discard the datagram rather than propagating the error.
var (
	errDatagramTooShort = errors.New("datagram shorter than header")
	errDatagramTooLarge = errors.New("datagram exceeds max size")
)

// videoHeader is the fixed header of a video datagram: client_id, sequence,
// frame_size, all big-endian uint32, followed by frame_size opaque bytes.
type videoHeader struct {
	ClientID  uint32
	Sequence  uint32
	FrameSize uint32
}

// decodeVideoHeader parses the fixed header from a raw datagram and returns
// it along with the frame payload slice (no copy).
func decodeVideoHeader(data []byte) (videoHeader, []byte, error) {
	if len(data) < videoHeaderSize {
		return videoHeader{}, nil, errDatagramTooShort
	}
	if len(data) > maxDatagramSize {
		return videoHeader{}, nil, errDatagramTooLarge
	}
	h := videoHeader{
		ClientID:  binary.BigEndian.Uint32(data[0:4]),
		Sequence:  binary.BigEndian.Uint32(data[4:8]),
		FrameSize: binary.BigEndian.Uint32(data[8:12]),
	}
	payload := data[videoHeaderSize:]
	if uint32(len(payload)) < h.FrameSize {
		return videoHeader{}, nil, errDatagramTooShort
	}
	return h, payload[:h.FrameSize], nil
}

// encodeVideoDatagram builds a wire datagram from a header and payload.
func encodeVideoDatagram(h videoHeader, payload []byte) []byte {
	out := make([]byte, videoHeaderSize+len(payload))
	binary.BigEndian.PutUint32(out[0:4], h.ClientID)
	binary.BigEndian.PutUint32(out[4:8], h.Sequence)
	binary.BigEndian.PutUint32(out[8:12], uint32(len(payload)))
	copy(out[videoHeaderSize:], payload)
	return out
}

// stampVideoSender overwrites the client_id field in place with id. The
// receive loops pass the id the sender was looked up under, which is the
// client_id from the datagram's own header.
func stampVideoSender(data []byte, id uint32) {
	binary.BigEndian.PutUint32(data[0:4], id)
}

// audioHeader is the fixed header of an audio datagram: client_id and a
// sender-supplied timestamp, both big-endian uint32.
type audioHeader struct {
	ClientID  uint32
	Timestamp uint32
}

func decodeAudioHeader(data []byte) (audioHeader, []byte, error) {
	if len(data) < audioHeaderSize {
		return audioHeader{}, nil, errDatagramTooShort
	}
	if len(data) > maxDatagramSize {
		return audioHeader{}, nil, errDatagramTooLarge
	}
	h := audioHeader{
		ClientID:  binary.BigEndian.Uint32(data[0:4]),
		Timestamp: binary.BigEndian.Uint32(data[4:8]),
	}
	return h, data[audioHeaderSize:], nil
}

func encodeAudioDatagram(h audioHeader, payload []byte) []byte {
	out := make([]byte, audioHeaderSize+len(payload))
	binary.BigEndian.PutUint32(out[0:4], h.ClientID)
	binary.BigEndian.PutUint32(out[4:8], h.Timestamp)
	copy(out[audioHeaderSize:], payload)
	return out
}

func stampAudioSender(data []byte, id uint32) {
	binary.BigEndian.PutUint32(data[0:4], id)
}
