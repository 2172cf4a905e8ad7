package fade

import "testing"

func ringSample(seq int, lum float64) FrameSample {
	return FrameSample{Luminance: lum, Variance: 0.1, SequenceIndex: seq, CapturedAt: float64(seq) / 30.0}
}

func TestSampleRing_FillAndWrap(t *testing.T) {
	r := newSampleRing(4)

	if r.size != 0 {
		t.Fatalf("expected empty ring, got size %d", r.size)
	}
	if got := r.snapshot(); got != nil {
		t.Errorf("expected nil snapshot for empty ring, got %v", got)
	}

	for i := 0; i < 6; i++ {
		r.add(ringSample(i, float64(i)*0.1))
	}

	if r.size != 4 {
		t.Fatalf("expected size 4 after wrap, got %d", r.size)
	}

	snap := r.snapshot()
	if len(snap) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(snap))
	}
	// Oldest two samples were overwritten; 2..5 remain in order.
	for i, s := range snap {
		if s.SequenceIndex != i+2 {
			t.Errorf("snapshot[%d]: expected seq %d, got %d", i, i+2, s.SequenceIndex)
		}
	}
}

func TestSampleRing_Previous(t *testing.T) {
	r := newSampleRing(3)
	for i := 0; i < 5; i++ {
		r.add(ringSample(i, 0.5))
	}

	newest, ok := r.previous(1)
	if !ok || newest.SequenceIndex != 4 {
		t.Errorf("previous(1): expected seq 4, got %d (ok=%v)", newest.SequenceIndex, ok)
	}
	oldest, ok := r.previous(3)
	if !ok || oldest.SequenceIndex != 2 {
		t.Errorf("previous(3): expected seq 2, got %d (ok=%v)", oldest.SequenceIndex, ok)
	}
	if _, ok := r.previous(4); ok {
		t.Error("previous(4) beyond stored count should not be ok")
	}
	if _, ok := r.previous(0); ok {
		t.Error("previous(0) should not be ok")
	}
}

func TestSampleRing_Tail(t *testing.T) {
	r := newSampleRing(5)
	for i := 0; i < 5; i++ {
		r.add(ringSample(i, 0.5))
	}

	tail := r.tail(2)
	if len(tail) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(tail))
	}
	if tail[0].SequenceIndex != 3 || tail[1].SequenceIndex != 4 {
		t.Errorf("expected seqs [3 4], got [%d %d]", tail[0].SequenceIndex, tail[1].SequenceIndex)
	}

	// Requesting more than stored returns everything.
	all := r.tail(10)
	if len(all) != 5 {
		t.Errorf("expected full contents for oversize tail, got %d samples", len(all))
	}

	if got := r.tail(0); got != nil {
		t.Errorf("tail(0) should be nil, got %v", got)
	}
}
