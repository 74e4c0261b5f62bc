package main

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// outboundQueues holds one participant's per-channel-class outbound state,
// single-producer (the fan-out engine) / single-consumer (that participant's
// writer task). Video and audio never queue here — they are sent inline by
// the datagram receive loop, dropped immediately if the send would block.
type outboundQueues struct {
	mu sync.Mutex

	// control never drops; breaching the hard bound marks the participant
	// unhealthy for eviction instead.
	control []ControlMsg

	// shared carries chat, roster, file_available and presenter_changed
	// notifications: drop-oldest-of-class once the soft bound is exceeded.
	shared      []ControlMsg
	sharedBytes int

	// screen is a single coalescing slot: a newer frame replaces any
	// pending older one (latest-wins).
	screen *ControlMsg

	notify    chan struct{}
	unhealthy chan struct{}
	unhealthyOnce sync.Once
}

func newOutboundQueues() *outboundQueues {
	return &outboundQueues{
		notify:    make(chan struct{}, 1),
		unhealthy: make(chan struct{}),
	}
}

func (q *outboundQueues) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *outboundQueues) markUnhealthy() {
	q.unhealthyOnce.Do(func() { close(q.unhealthy) })
}

// Unhealthy returns a channel closed once this participant's control queue
// breached its hard bound and must be evicted.
func (q *outboundQueues) Unhealthy() <-chan struct{} { return q.unhealthy }

// EnqueueControl appends a control-class message (moderation, login_success,
// file_available acks directed at one recipient, etc). Control never drops;
// if appending would breach the hard bound the participant is flagged
// unhealthy and the message is still appended so the writer can flush
// whatever it can before the eviction takes effect.
func (q *outboundQueues) EnqueueControl(msg ControlMsg) {
	q.mu.Lock()
	q.control = append(q.control, msg)
	breached := len(q.control) > outboundHardBoundItems
	q.mu.Unlock()
	q.wake()
	if breached {
		fanoutHardBoundEvictions.Inc()
		noteFanoutEvicted()
		q.markUnhealthy()
	}
}

// EnqueueShared appends a shared-notification-class message (chat, roster
// changes, file_available, presenter_changed) applying drop-oldest once the
// soft bound (items or aggregate bytes) is exceeded.
func (q *outboundQueues) EnqueueShared(msg ControlMsg, approxBytes int) {
	q.mu.Lock()
	q.shared = append(q.shared, msg)
	q.sharedBytes += approxBytes
	dropped := 0
	for len(q.shared) > outboundSoftBoundItems || q.sharedBytes > outboundSoftBoundBytes {
		if len(q.shared) == 0 {
			break
		}
		q.sharedBytes -= approxSize(q.shared[0])
		q.shared = q.shared[1:]
		dropped++
	}
	q.mu.Unlock()
	if dropped > 0 {
		fanoutDropped.WithLabelValues("shared").Add(float64(dropped))
		for i := 0; i < dropped; i++ {
			noteFanoutDropped()
		}
	}
	q.wake()
}

// EnqueueScreen replaces the pending screen frame with the newest one.
func (q *outboundQueues) EnqueueScreen(msg ControlMsg) {
	q.mu.Lock()
	replaced := q.screen != nil
	q.screen = &msg
	q.mu.Unlock()
	if replaced {
		fanoutDropped.WithLabelValues("screen_collapsed").Inc()
		noteFanoutDropped()
	}
	q.wake()
}

// Dequeue returns the next message to write, in priority order: control
// (never dropped, so it must drain first) then screen (latest-wins) then
// shared. Returns ok=false if nothing is queued.
func (q *outboundQueues) Dequeue() (ControlMsg, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.control) > 0 {
		m := q.control[0]
		q.control = q.control[1:]
		return m, true
	}
	if q.screen != nil {
		m := *q.screen
		q.screen = nil
		return m, true
	}
	if len(q.shared) > 0 {
		m := q.shared[0]
		q.sharedBytes -= approxSize(m)
		q.shared = q.shared[1:]
		return m, true
	}
	return ControlMsg{}, false
}

// WaitForWork blocks until Dequeue would likely return something, the
// participant is closed, or ctx is canceled.
func (q *outboundQueues) WaitForWork(ctx context.Context, closed <-chan struct{}) {
	select {
	case <-q.notify:
	case <-closed:
	case <-ctx.Done():
	}
}

func approxSize(msg ControlMsg) int {
	// Cheap, deliberately approximate: text/payload length dominates.
	return len(msg.Text) + len(msg.FrameData) + 64
}

// fanOut is the Fan-Out Engine (component C5): for each inbound item it
// computes recipients by tag and dispatches to the right queue with the
// tag's overflow policy, per the recipient table in the specification.
type fanOut struct {
	reg *Registry
}

func newFanOut(reg *Registry) *fanOut { return &fanOut{reg: reg} }

// Chat fans to all participants except the sender, reliable channel,
// drop-oldest-of-class overflow.
func (f *fanOut) Chat(senderID uint32, msg ControlMsg) {
	for _, p := range f.reg.Snapshot() {
		if p.ID == senderID {
			continue
		}
		p.outbound.EnqueueShared(msg, approxSize(msg))
	}
}

// Roster fans a join/leave/roster-shape message to everyone (including the
// subject, per the table: "all").
func (f *fanOut) Roster(msg ControlMsg) {
	for _, p := range f.reg.Snapshot() {
		p.outbound.EnqueueShared(msg, approxSize(msg))
	}
}

// Notify delivers a control/moderation message to exactly one participant,
// never-drop semantics.
func (f *fanOut) Notify(targetID uint32, msg ControlMsg) {
	if p := f.reg.Lookup(targetID); p != nil {
		p.outbound.EnqueueControl(msg)
	}
}

// BroadcastControl delivers a never-drop control message to everyone.
func (f *fanOut) BroadcastControl(msg ControlMsg) {
	for _, p := range f.reg.Snapshot() {
		p.outbound.EnqueueControl(msg)
	}
}

// ScreenFrame fans to everyone except the presenter, latest-wins collapse.
func (f *fanOut) ScreenFrame(presenterID uint32, msg ControlMsg) {
	for _, p := range f.reg.Snapshot() {
		if p.ID == presenterID {
			continue
		}
		p.outbound.EnqueueScreen(msg)
	}
}

// FileAvailable / PresenterChanged share the "all, same as chat" policy.
func (f *fanOut) FileAvailable(msg ControlMsg)    { f.Roster(msg) }
func (f *fanOut) PresenterChanged(msg ControlMsg) { f.Roster(msg) }

// Video fans a validated video datagram to every participant in the session
// except its source. No queue: a would-block send is dropped outright, and
// counted against that recipient's circuit breaker.
func (f *fanOut) Video(senderID uint32, data []byte) {
	for _, p := range f.reg.Snapshot() {
		if p.ID == senderID {
			continue
		}
		if !p.Permissions().MayVideo {
			continue
		}
		sendDatagramBestEffort(p, &p.videoHealth, data, true)
	}
}

// Audio mirrors Video for the audio datagram class.
func (f *fanOut) Audio(senderID uint32, data []byte) {
	for _, p := range f.reg.Snapshot() {
		if p.ID == senderID {
			continue
		}
		if !p.Permissions().MayAudio {
			continue
		}
		sendDatagramBestEffort(p, &p.audioHealth, data, false)
	}
}

func sendDatagramBestEffort(p *Participant, health *sendHealth, data []byte, video bool) {
	if health.shouldSkip() {
		fanoutDropped.WithLabelValues("datagram_circuit_open").Inc()
		noteFanoutDropped()
		return
	}
	if p.media == nil {
		return
	}
	var err error
	if video {
		err = p.media.SendVideo(data)
	} else {
		err = p.media.SendAudio(data)
	}
	if err != nil {
		health.recordFailure()
		fanoutDropped.WithLabelValues("datagram_send_error").Inc()
		noteFanoutDropped()
		return
	}
	health.recordSuccess()
}

var (
	fanoutDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confhub_fanout_dropped_total",
		Help: "Items dropped by the fan-out engine, by reason.",
	}, []string{"reason"})
	fanoutHardBoundEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confhub_fanout_hard_bound_evictions_total",
		Help: "Participants evicted for breaching the never-drop control queue hard bound.",
	})
)
