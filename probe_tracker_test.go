package scion_test

import (
	"errors"
	"testing"
	"time"

	. "github.com/GioBar00/scion"
)

func probePacket(probeNum uint32, ack uint8) *Packet {
	p := &Packet{L4: L4TCP}
	AddPathProbe(p, probeNum, ack)
	return p
}

func TestTrackerAck(t *testing.T) {
	tr := NewPathProbeTracker()
	defer tr.Close()

	if err := tr.RecordSent("peer", 7); err != nil {
		t.Fatalf("RecordSent error: %v", err)
	}

	num, wantAck, err := tr.HandlePacket("peer", probePacket(7, 1))
	if err != nil {
		t.Fatalf("HandlePacket error: %v", err)
	}
	if num != 7 || wantAck {
		t.Errorf("HandlePacket = (%v, %v), want (7, false)", num, wantAck)
	}

	st := tr.Peek("peer")
	if st == nil {
		t.Fatal("Peek returned nil after ack")
	}
	if !st.Acked || st.ProbeNum != 7 {
		t.Errorf("status = %+v, want acked probe 7", st)
	}
	if st.RTT < 0 {
		t.Errorf("RTT = %v, want non-negative", st.RTT)
	}
}

func TestTrackerRequestWantsAck(t *testing.T) {
	tr := NewPathProbeTracker()
	defer tr.Close()

	num, wantAck, err := tr.HandlePacket("peer", probePacket(9, 0))
	if err != nil {
		t.Fatalf("HandlePacket error: %v", err)
	}
	if num != 9 || !wantAck {
		t.Errorf("HandlePacket = (%v, %v), want (9, true)", num, wantAck)
	}
	if st := tr.Peek("peer"); st != nil {
		t.Errorf("Peek = %+v after inbound request, want nil", st)
	}
}

func TestTrackerNoProbe(t *testing.T) {
	tr := NewPathProbeTracker()
	defer tr.Close()

	p := &Packet{L4: L4UDP}
	if _, _, err := tr.HandlePacket("peer", p); !errors.Is(err, ErrExtnNotFound) {
		t.Errorf("HandlePacket error = %v without probe, want %v", err, ErrExtnNotFound)
	}
}

func TestTrackerStaleAckIgnored(t *testing.T) {
	tr := NewPathProbeTracker()
	defer tr.Close()

	if err := tr.RecordSent("peer", 5); err != nil {
		t.Fatalf("RecordSent error: %v", err)
	}
	if _, _, err := tr.HandlePacket("peer", probePacket(6, 1)); err != nil {
		t.Fatalf("HandlePacket error: %v", err)
	}

	st := tr.Peek("peer")
	if st == nil {
		t.Fatal("Peek returned nil")
	}
	if st.Acked {
		t.Errorf("status = %+v after stale ack, want unacked", st)
	}
}

func TestTrackerExpiry(t *testing.T) {
	tr := NewPathProbeTrackerWithTimeout(20 * time.Millisecond)
	defer tr.Close()

	if err := tr.RecordSent("peer", 1); err != nil {
		t.Fatalf("RecordSent error: %v", err)
	}
	if st := tr.Peek("peer"); st == nil {
		t.Fatal("Peek returned nil right after RecordSent")
	}

	time.Sleep(100 * time.Millisecond)
	if st := tr.Peek("peer"); st != nil {
		t.Errorf("Peek = %+v after expiry, want nil", st)
	}
}

func TestTrackerAwaitAck(t *testing.T) {
	tr := NewPathProbeTrackerWithTimeout(time.Second)
	defer tr.Close()

	if err := tr.RecordSent("peer", 3); err != nil {
		t.Fatalf("RecordSent error: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _, _ = tr.HandlePacket("peer", probePacket(3, 1))
	}()

	if err := tr.AwaitAck("peer", 3); err != nil {
		t.Fatalf("AwaitAck error: %v", err)
	}

	st := tr.Pop("peer")
	if st == nil || !st.Acked {
		t.Fatalf("Pop = %+v after ack, want acked status", st)
	}
	if st.AckedAt.Before(st.SentAt) {
		t.Errorf("AckedAt %v precedes SentAt %v", st.AckedAt, st.SentAt)
	}
	if tr.Peek("peer") != nil {
		t.Error("Peek returned status after Pop")
	}
}

func TestTrackerAwaitAckExpires(t *testing.T) {
	tr := NewPathProbeTrackerWithTimeout(20 * time.Millisecond)
	defer tr.Close()

	if err := tr.RecordSent("peer", 4); err != nil {
		t.Fatalf("RecordSent error: %v", err)
	}
	if err := tr.AwaitAck("peer", 4); !errors.Is(err, ErrProbeExpired) {
		t.Errorf("AwaitAck error = %v, want %v", err, ErrProbeExpired)
	}
}

func TestTrackerAwaitAckSuperseded(t *testing.T) {
	tr := NewPathProbeTrackerWithTimeout(time.Second)
	defer tr.Close()

	if err := tr.RecordSent("peer", 5); err != nil {
		t.Fatalf("RecordSent error: %v", err)
	}
	if err := tr.RecordSent("peer", 6); err != nil {
		t.Fatalf("RecordSent error: %v", err)
	}
	if err := tr.AwaitAck("peer", 5); !errors.Is(err, ErrProbeExpired) {
		t.Errorf("AwaitAck error = %v for replaced probe, want %v", err, ErrProbeExpired)
	}
}

func TestTrackerClosed(t *testing.T) {
	tr := NewPathProbeTracker()
	if err := tr.RecordSent("peer", 1); err != nil {
		t.Fatalf("RecordSent error: %v", err)
	}
	tr.Close()

	if err := tr.RecordSent("peer", 2); !errors.Is(err, ErrTrackerClosed) {
		t.Errorf("RecordSent error = %v after Close, want %v", err, ErrTrackerClosed)
	}
	if _, _, err := tr.HandlePacket("peer", probePacket(1, 1)); !errors.Is(err, ErrTrackerClosed) {
		t.Errorf("HandlePacket error = %v after Close, want %v", err, ErrTrackerClosed)
	}
	if err := tr.AwaitAck("peer", 1); !errors.Is(err, ErrTrackerClosed) {
		t.Errorf("AwaitAck error = %v after Close, want %v", err, ErrTrackerClosed)
	}
}

func TestTrackerSetTimeout(t *testing.T) {
	tr := NewPathProbeTracker()
	defer tr.Close()
	tr.SetTimeout(20 * time.Millisecond)

	if err := tr.RecordSent("peer", 1); err != nil {
		t.Fatalf("RecordSent error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if st := tr.Peek("peer"); st != nil {
		t.Errorf("Peek = %+v after shortened expiry, want nil", st)
	}
}
