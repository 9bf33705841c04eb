package evidence

import "math"

// Score is the ledger's output: a per-type average and one weighted final
// value, both on the 0-100 scale.
type Score struct {
	PerType map[Type]float64 `json:"per_type"`
	Final   float64          `json:"final"`
}

// Ledger aggregates pin confidences into a weighted score. Recompute is
// always total over the full pin set, never incremental, so the result does
// not depend on the order pins were merged.
type Ledger struct {
	weights map[Type]float64
}

// DefaultWeights favor change and code evidence slightly since they most
// often carry root causes.
func DefaultWeights() map[Type]float64 {
	return map[Type]float64{
		TypeLog:    1.0,
		TypeMetric: 1.0,
		TypeTrace:  0.9,
		TypeK8s:    0.9,
		TypeCode:   1.1,
		TypeChange: 1.1,
	}
}

// NewLedger creates a ledger with the default weights.
func NewLedger() *Ledger {
	return NewLedgerWithWeights(nil)
}

// NewLedgerWithWeights creates a ledger; nil or missing entries fall back to
// the defaults, unknown types get weight 1.
func NewLedgerWithWeights(weights map[Type]float64) *Ledger {
	w := DefaultWeights()
	for t, v := range weights {
		if v > 0 {
			w[t] = v
		}
	}
	return &Ledger{weights: w}
}

// Recompute derives the score from all pins. Types with no pins do not
// contribute. An empty pin set yields a zero score.
func (l *Ledger) Recompute(pins []Pin) Score {
	sums := make(map[Type]float64)
	counts := make(map[Type]int)
	for _, p := range pins {
		sums[p.Type] += float64(p.Confidence)
		counts[p.Type]++
	}

	score := Score{PerType: make(map[Type]float64)}
	var weightedSum, weightTotal float64
	for _, t := range ValidTypes {
		n := counts[t]
		if n == 0 {
			continue
		}
		avg := sums[t] / float64(n)
		score.PerType[t] = round1(avg)

		w := l.weights[t]
		if w <= 0 {
			w = 1
		}
		weightedSum += avg * w
		weightTotal += w
	}
	if weightTotal > 0 {
		score.Final = round1(weightedSum / weightTotal)
	}
	return score
}

// MeanConfidence is the order-independent running average over task
// confidences: a total recompute from the full set each time.
func MeanConfidence(confidences []int) int {
	if len(confidences) == 0 {
		return 0
	}
	sum := 0
	for _, c := range confidences {
		sum += c
	}
	return int(math.Round(float64(sum) / float64(len(confidences))))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
