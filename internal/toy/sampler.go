package toy

import (
	"math"
	"math/rand"
)

// SamplerConfig controls how SampleStepper picks the next token.
type SamplerConfig struct {
	Seed int64
	// Temperature <= 0 selects greedy decoding.
	Temperature   float32
	TopK          int
	TopP          float32
	RepeatPenalty float32
	RepeatLastN   int
}

// sampler draws token ids from a logits vector. It reuses its scratch
// buffers between calls and is not safe for concurrent use.
type sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool

	idx  []int
	val  []float32
	prob []float64
	seen map[uint32]struct{}
}

func newSampler(cfg SamplerConfig) *sampler {
	greedy := cfg.Temperature <= 0
	if greedy {
		cfg.Temperature = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 40
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	if cfg.RepeatPenalty <= 0 {
		cfg.RepeatPenalty = 1
	}
	if cfg.RepeatLastN <= 0 {
		cfg.RepeatLastN = 64
	}
	return &sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
		seen:   make(map[uint32]struct{}),
	}
}

// sample returns an index into logits. logits is modified in place by the
// repetition penalty for ids in the trailing window of recent.
func (s *sampler) sample(logits []float32, recent []uint32) uint32 {
	if len(logits) == 0 {
		return 0
	}
	s.penalise(logits, recent)

	if s.greedy || s.cfg.TopK == 1 {
		return uint32(argmax(logits))
	}

	idx, val := s.topK(logits, min(s.cfg.TopK, len(logits)), 1/s.cfg.Temperature)

	// Softmax over the shortlist; val[0] is the maximum.
	if cap(s.prob) < len(val) {
		s.prob = make([]float64, len(val))
	}
	prob := s.prob[:len(val)]
	var sum float64
	for i, v := range val {
		prob[i] = math.Exp(float64(v - val[0]))
		sum += prob[i]
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i] / sum
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}
	var total float64
	for _, p := range prob[:cut] {
		total += p
	}

	r := s.rng.Float64() * total
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r < c {
			return uint32(idx[i])
		}
	}
	return uint32(idx[cut-1])
}

func (s *sampler) penalise(logits []float32, recent []uint32) {
	if s.cfg.RepeatPenalty <= 1 || len(recent) == 0 {
		return
	}
	clear(s.seen)
	for _, id := range recent[max(len(recent)-s.cfg.RepeatLastN, 0):] {
		if int(id) >= len(logits) {
			continue
		}
		if _, dup := s.seen[id]; dup {
			continue
		}
		s.seen[id] = struct{}{}
		if logits[id] > 0 {
			logits[id] /= s.cfg.RepeatPenalty
		} else {
			logits[id] *= s.cfg.RepeatPenalty
		}
	}
}

// topK returns the k largest logits scaled by invTemp, largest first. It is
// O(V*K), which is fine for the small vocabularies used here.
func (s *sampler) topK(logits []float32, k int, invTemp float32) ([]int, []float32) {
	idx := s.idx[:0]
	val := s.val[:0]
	for i, l := range logits {
		v := l * invTemp
		pos := len(val)
		for pos > 0 && val[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		idx = append(idx, 0)
		val = append(val, 0)
		copy(idx[pos+1:], idx[pos:])
		copy(val[pos+1:], val[pos:])
		idx[pos], val[pos] = i, v
		if len(val) > k {
			idx, val = idx[:k], val[:k]
		}
	}
	s.idx, s.val = idx, val
	return idx, val
}

func argmax(x []float32) int {
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}
