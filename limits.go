package main

import "time"

// Operational limits — named constants gathered in one place, the way the
// original server collected its tunables.
const (
	// maxControlFrame is the largest control-channel payload accepted before
	// the connection is treated as malformed and closed.
	maxControlFrame = 1 << 20 // 1 MiB

	// maxDatagramSize is the largest video or audio datagram accepted on the wire.
	maxDatagramSize = 9000

	// videoHeaderSize is the fixed header length of a video datagram:
	// client_id(4) + sequence(4) + frame_size(4).
	videoHeaderSize = 12

	// audioHeaderSize is the fixed header length of an audio datagram:
	// client_id(4) + timestamp(4).
	audioHeaderSize = 8

	// maxChatBytes is the largest chat message body accepted.
	maxChatBytes = 4096

	// maxNameLength is the largest display name accepted at login.
	maxNameLength = 50

	// defaultChatHistory is the default number of chat messages retained.
	defaultChatHistory = 500

	// defaultMaxParticipants caps the size of the participant table.
	defaultMaxParticipants = 100

	// maxFileSize is the default largest accepted upload, in bytes.
	maxFileSize = 100 << 20 // 100 MiB

	// fileChunkSize is the write granularity used while streaming an upload
	// to the spool or a download out of it.
	fileChunkSize = 32 * 1024

	// outboundSoftBoundItems is the queue depth at which the class-specific
	// overflow policy (drop-oldest / collapse-latest) engages.
	outboundSoftBoundItems = 256

	// outboundSoftBoundBytes is the aggregate byte bound paired with
	// outboundSoftBoundItems.
	outboundSoftBoundBytes = 8 << 20 // 8 MiB

	// outboundHardBoundItems is the queue depth beyond which a "never drop"
	// channel declares its recipient unhealthy and evicts it.
	outboundHardBoundItems = 1024

	// controlReadTimeout bounds how long a declared-length read may take.
	controlReadTimeout = 10 * time.Second

	// controlWriteSoftTimeout / controlWriteHardTimeout bound writer stalls;
	// hard expiry evicts the recipient.
	controlWriteSoftTimeout = 5 * time.Second
	controlWriteHardTimeout = 15 * time.Second

	// heartbeatInterval is the cadence clients are expected to heartbeat at.
	heartbeatInterval = 10 * time.Second
	// heartbeatSoftTimeout logs a warning but keeps the participant.
	heartbeatSoftTimeout = 20 * time.Second
	// heartbeatHardTimeout evicts the participant.
	heartbeatHardTimeout = 30 * time.Second

	// fileTransferIdleTimeout is the inactivity bound on an open transfer.
	fileTransferIdleTimeout = 30 * time.Second
	// fileListenerAcceptTimeout bounds how long an ephemeral listener waits
	// for its one expected peer to connect.
	fileListenerAcceptTimeout = 30 * time.Second

	// shutdownDrainBudget is how long writers get to flush a best-effort
	// server_shutdown notice before the server hard-closes everything.
	shutdownDrainBudget = 2 * time.Second

	// maxNameSuffixAttempts bounds the disambiguation loop for duplicate
	// display names. A taken name gets a counter suffix ("name (2)",
	// "name (3)", ...), not the participant id; the join is rejected only
	// once every suffix up to this bound is taken.
	maxNameSuffixAttempts = 1000
)
