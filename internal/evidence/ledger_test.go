package evidence

import (
	"math/rand"
	"testing"
)

func ledgerPins() []Pin {
	mk := func(t Type, conf int) Pin {
		return NewPin("sess-1", t, "claim", conf, Provenance{Tool: "t", Task: "task"})
	}
	return []Pin{
		mk(TypeLog, 85), mk(TypeLog, 75),
		mk(TypeMetric, 90),
		mk(TypeK8s, 60), mk(TypeK8s, 70), mk(TypeK8s, 50),
		mk(TypeChange, 95),
	}
}

func TestRecomputeOrderIndependent(t *testing.T) {
	l := NewLedger()
	base := ledgerPins()
	want := l.Recompute(base)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]Pin, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := l.Recompute(shuffled)
		if got.Final != want.Final {
			t.Fatalf("final differs across orders: %v vs %v", got.Final, want.Final)
		}
		for typ, avg := range want.PerType {
			if got.PerType[typ] != avg {
				t.Fatalf("per-type %s differs: %v vs %v", typ, got.PerType[typ], avg)
			}
		}
	}
}

func TestRecomputePerTypeAverages(t *testing.T) {
	l := NewLedger()
	s := l.Recompute(ledgerPins())

	if s.PerType[TypeLog] != 80.0 {
		t.Fatalf("log avg = %v, want 80", s.PerType[TypeLog])
	}
	if s.PerType[TypeK8s] != 60.0 {
		t.Fatalf("k8s avg = %v, want 60", s.PerType[TypeK8s])
	}
	if _, ok := s.PerType[TypeTrace]; ok {
		t.Fatal("trace has no pins, must not appear")
	}
}

func TestRecomputeFinalIsConvex(t *testing.T) {
	l := NewLedger()
	s := l.Recompute(ledgerPins())

	min, max := 200.0, -1.0
	for _, avg := range s.PerType {
		if avg < min {
			min = avg
		}
		if avg > max {
			max = avg
		}
	}
	if s.Final < min || s.Final > max {
		t.Fatalf("final %v outside [%v, %v]", s.Final, min, max)
	}
}

func TestRecomputeEmpty(t *testing.T) {
	s := NewLedger().Recompute(nil)
	if s.Final != 0 || len(s.PerType) != 0 {
		t.Fatalf("empty pins must score zero, got %+v", s)
	}
}

func TestRecomputeCustomWeights(t *testing.T) {
	heavy := NewLedgerWithWeights(map[Type]float64{TypeChange: 10})
	flat := NewLedgerWithWeights(map[Type]float64{TypeChange: 1, TypeCode: 1, TypeLog: 1, TypeMetric: 1, TypeTrace: 1, TypeK8s: 1})

	pins := ledgerPins()
	if heavy.Recompute(pins).Final <= flat.Recompute(pins).Final {
		t.Fatal("upweighting the highest-confidence type must raise the final score")
	}
}

func TestMeanConfidence(t *testing.T) {
	cases := []struct {
		in   []int
		want int
	}{
		{nil, 0},
		{[]int{80}, 80},
		{[]int{85, 90}, 88},
		{[]int{85, 90, 60}, 78},
	}
	for _, tc := range cases {
		if got := MeanConfidence(tc.in); got != tc.want {
			t.Fatalf("MeanConfidence(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}

	// Order independence.
	a := MeanConfidence([]int{40, 90, 70})
	b := MeanConfidence([]int{90, 70, 40})
	if a != b {
		t.Fatalf("mean differs across orders: %d vs %d", a, b)
	}
}
