package main

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus series for the hub. fanoutDropped/fanoutHardBoundEvictions are
// declared in fanout.go; the rest live here alongside the local mirror used
// for periodic log lines, following the metrics/local-snapshot split the
// CAN server's metrics package uses.
var (
	activeParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "confhub_active_participants",
		Help: "Current number of admitted participants.",
	})
	videoDatagramsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confhub_video_datagrams_total",
		Help: "Video datagrams accepted from clients.",
	})
	audioDatagramsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confhub_audio_datagrams_total",
		Help: "Audio datagrams accepted from clients.",
	})
	fileBytesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confhub_file_bytes_total",
		Help: "Bytes moved through the file transfer mediator, by direction.",
	}, []string{"direction"})
	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "confhub_build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version"})
	linkPreviewThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confhub_link_preview_throttled_total",
		Help: "Link preview fetches skipped due to the hub-wide rate cap.",
	})
)

// Local mirrors for the periodic human-readable log line; avoids scraping
// Prometheus's own registry in-process just to print a summary.
var (
	localParticipants uint64
	localDropped      uint64
	localEvictions    uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	Participants uint64
	Dropped      uint64
	Evictions    uint64
}

func MetricsSnapshot() Snapshot {
	return Snapshot{
		Participants: atomic.LoadUint64(&localParticipants),
		Dropped:      atomic.LoadUint64(&localDropped),
		Evictions:    atomic.LoadUint64(&localEvictions),
	}
}

func setActiveParticipants(n int) {
	activeParticipants.Set(float64(n))
	atomic.StoreUint64(&localParticipants, uint64(n))
}

func incVideoDatagram() { videoDatagramsTotal.Inc() }
func incAudioDatagram() { audioDatagramsTotal.Inc() }

func noteLinkPreviewThrottled() { linkPreviewThrottledTotal.Inc() }

func noteFanoutDropped() { atomic.AddUint64(&localDropped, 1) }
func noteFanoutEvicted() { atomic.AddUint64(&localEvictions, 1) }

func addFileBytes(direction string, n int64) {
	fileBytesTransferred.WithLabelValues(direction).Add(float64(n))
}

func initBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// RunMetricsSampler periodically refreshes the participant-count gauge from
// the registry and logs a one-line summary; the drop/eviction counters
// update inline at the point of occurrence (fanout.go).
func (h *Hub) RunMetricsSampler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := h.reg.Count()
			setActiveParticipants(n)
			snap := MetricsSnapshot()
			if n > 0 || snap.Dropped > 0 {
				log.Printf("[metrics] participants=%d fanout_dropped=%d evictions=%d", n, snap.Dropped, snap.Evictions)
			}
		}
	}
}
