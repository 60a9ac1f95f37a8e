package wire

import (
	"testing"
	"time"
)

func TestReassemblerSingleFrame(t *testing.T) {
	r := &Reassembler{}
	out, done, err := r.Feed(2, append([]byte{byte(kindSingle)}, []byte("hello")...))
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("expected done=true")
	}
	if string(out) != "hello" {
		t.Errorf("got %q", out)
	}
}

func TestReassemblerChunked(t *testing.T) {
	r := &Reassembler{}
	if _, done, err := r.Feed(2, append([]byte{byte(kindFirst)}, []byte("hel")...)); err != nil || done {
		t.Fatalf("first: done=%v err=%v", done, err)
	}
	if _, done, err := r.Feed(2, append([]byte{byte(kindContinue)}, []byte("lo ")...)); err != nil || done {
		t.Fatalf("continue: done=%v err=%v", done, err)
	}
	out, done, err := r.Feed(2, append([]byte{byte(kindLast)}, []byte("world")...))
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("expected done=true")
	}
	if string(out) != "hello world" {
		t.Errorf("got %q", out)
	}
}

func TestReassemblerStrayContinue(t *testing.T) {
	r := &Reassembler{}
	_, _, err := r.Feed(2, append([]byte{byte(kindContinue)}, []byte("x")...))
	if err == nil {
		t.Fatal("expected protocol violation")
	}
}

func TestReassemblerTextFrame(t *testing.T) {
	r := &Reassembler{}
	_, _, err := r.Feed(1, []byte("hi"))
	if err == nil {
		t.Fatal("expected protocol violation for text frame")
	}
}

func TestEncodeDecodeDuration(t *testing.T) {
	d := 12*time.Second + 345*time.Millisecond
	buf := EncodeDuration(d)
	if len(buf) != 12 {
		t.Fatalf("got length %d", len(buf))
	}
	got, ok := DecodeDuration(buf)
	if !ok {
		t.Fatal("expected ok")
	}
	if got != d {
		t.Errorf("got %v, want %v", got, d)
	}
}

func TestDecodeDurationWrongLength(t *testing.T) {
	_, ok := DecodeDuration([]byte{1, 2, 3})
	if ok {
		t.Fatal("expected ok=false for wrong length")
	}
}

func TestHeartbeatExpiry(t *testing.T) {
	start := time.Now()
	hb := NewHeartbeat(start)
	if hb.Expired(start.Add(9 * time.Second)) {
		t.Error("should not be expired at 9s")
	}
	if !hb.Expired(start.Add(11 * time.Second)) {
		t.Error("should be expired at 11s")
	}
	hb.Touch(start.Add(9 * time.Second))
	if hb.Expired(start.Add(18 * time.Second)) {
		t.Error("touch should have reset the clock")
	}
}
