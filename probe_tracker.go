package scion

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const DEFAULT_PATHPROBE_EXPIRY = 30 * time.Second

var (
	ErrTrackerClosed = errors.New("PathProbeTracker closed")
	ErrProbeExpired  = errors.New("probe expired before acknowledgment")
)

// ProbeStatus is the tracked state of the latest probe sent to a peer.
type ProbeStatus struct {
	ProbeNum uint32        `json:"probe_num"`
	SentAt   time.Time     `json:"sent_at"`
	Acked    bool          `json:"acked"`
	AckedAt  time.Time     `json:"acked_at,omitempty"`
	RTT      time.Duration `json:"rtt,omitempty"`
}

// PathProbeTracker correlates path probes sent to peers with the acks
// coming back. Entries expire on their own after the configured timeout,
// so unreachable peers do not accumulate state.
type PathProbeTracker struct {
	mapProbes *sync.Map

	timeout time.Duration
	closed  atomic.Bool
}

// NewPathProbeTracker creates a new PathProbeTracker.
func NewPathProbeTracker() *PathProbeTracker {
	return &PathProbeTracker{
		mapProbes: new(sync.Map),
		closed:    atomic.Bool{},
	}
}

// NewPathProbeTrackerWithTimeout creates a new PathProbeTracker whose
// entries expire after timeout.
func NewPathProbeTrackerWithTimeout(timeout time.Duration) *PathProbeTracker {
	return &PathProbeTracker{
		mapProbes: new(sync.Map),
		timeout:   timeout,
		closed:    atomic.Bool{},
	}
}

// SetTimeout sets the expiry for entries recorded after the call.
func (pt *PathProbeTracker) SetTimeout(timeout time.Duration) {
	pt.timeout = timeout
}

// RecordSent remembers that the probe with probeNum went out to peer,
// replacing any previous entry for the peer.
func (pt *PathProbeTracker) RecordSent(peer string, probeNum uint32) error {
	if pt.closed.Load() {
		return ErrTrackerClosed
	}

	st := &ProbeStatus{
		ProbeNum: probeNum,
		SentAt:   time.Now(),
	}
	pt.mapProbes.Store(peer, st)
	go func(timeoutOverride time.Duration, key string, oldSt *ProbeStatus) {
		if timeoutOverride == time.Duration(0) {
			<-time.After(DEFAULT_PATHPROBE_EXPIRY)
		} else {
			<-time.After(timeoutOverride)
		}
		pt.mapProbes.CompareAndDelete(key, oldSt)
	}(pt.timeout, peer, st)

	return nil
}

// HandlePacket inspects a decoded packet from peer for a path probe. A
// request probe is handed back with wantAck set so the caller can send
// the ack echoing the probe number. An ack probe is matched against the
// outstanding entry for the peer; acks for unknown or stale probe
// numbers are dropped silently. Packets carrying no probe report
// ErrExtnNotFound.
func (pt *PathProbeTracker) HandlePacket(peer string, p *Packet) (probeNum uint32, wantAck bool, err error) {
	if pt.closed.Load() {
		return 0, false, ErrTrackerClosed
	}

	probe, err := FindPathProbe(p)
	if err != nil {
		return 0, false, err
	}

	if probe.Ack == 0 {
		return probe.ProbeNum, true, nil
	}

	if v, ok := pt.mapProbes.Load(peer); ok {
		st, ok := v.(*ProbeStatus)
		if ok && !st.Acked && st.ProbeNum == probe.ProbeNum {
			now := time.Now()
			acked := &ProbeStatus{
				ProbeNum: st.ProbeNum,
				SentAt:   st.SentAt,
				Acked:    true,
				AckedAt:  now,
				RTT:      now.Sub(st.SentAt),
			}
			if pt.mapProbes.CompareAndSwap(peer, st, acked) {
				go func(timeoutOverride time.Duration, key string, oldSt *ProbeStatus) {
					if timeoutOverride == time.Duration(0) {
						<-time.After(DEFAULT_PATHPROBE_EXPIRY)
					} else {
						<-time.After(timeoutOverride)
					}
					pt.mapProbes.CompareAndDelete(key, oldSt)
				}(pt.timeout, peer, acked)
			}
		}
	}
	return probe.ProbeNum, false, nil
}

// AwaitAck blocks until the ack for probeNum from peer is recorded. It
// returns ErrProbeExpired when the entry expires or is replaced by a
// newer probe first, and ErrTrackerClosed when the tracker closes.
func (pt *PathProbeTracker) AwaitAck(peer string, probeNum uint32) error {
	for {
		if pt.closed.Load() {
			return ErrTrackerClosed
		}

		st := pt.Peek(peer)
		if st == nil || st.ProbeNum != probeNum {
			return ErrProbeExpired
		}
		if st.Acked {
			return nil
		}

		time.Sleep(time.Millisecond)
	}
}

// Peek looks up the tracked status for a peer.
func (pt *PathProbeTracker) Peek(peer string) *ProbeStatus {
	v, ok := pt.mapProbes.Load(peer)
	if !ok {
		return nil
	}

	st, ok := v.(*ProbeStatus)
	if !ok {
		return nil
	}

	return st
}

// Pop looks up the tracked status for a peer and deletes it from the
// tracker if found.
func (pt *PathProbeTracker) Pop(peer string) *ProbeStatus {
	v, ok := pt.mapProbes.LoadAndDelete(peer)
	if !ok {
		return nil
	}

	st, ok := v.(*ProbeStatus)
	if !ok {
		return nil
	}

	return st
}

// Close closes the PathProbeTracker. Expiry timers still pending drain
// on their own.
func (pt *PathProbeTracker) Close() {
	pt.closed.Store(true)
}
