package generate

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/cbegin/beatmapgen-go/internal/tokenizer"
)

// sampler picks the next token from logits. Only EOS and event tokens are
// eligible; conditioning and padding ids are masked out.
type sampler struct {
	tok         *tokenizer.Tokenizer
	temperature float64
	topP        float64
	rng         *rand.Rand

	probs []candidate
}

type candidate struct {
	id int
	p  float64
}

func newSampler(tok *tokenizer.Tokenizer, o Options, windowIndex int) *sampler {
	return &sampler{
		tok:         tok,
		temperature: o.Temperature,
		topP:        o.TopP,
		rng:         rand.New(rand.NewPCG(o.Seed, uint64(windowIndex))),
	}
}

func (s *sampler) eligible(id int) bool {
	return id == tokenizer.EOSID || s.tok.IsEvent(id)
}

func (s *sampler) pick(logits []float64) (int, error) {
	if len(logits) != s.tok.VocabSize() {
		return 0, fmt.Errorf("logits have %d entries, vocabulary has %d", len(logits), s.tok.VocabSize())
	}
	best, bestLogit := -1, math.Inf(-1)
	for id, l := range logits {
		if !s.eligible(id) || math.IsNaN(l) {
			continue
		}
		if best < 0 || l > bestLogit {
			best, bestLogit = id, l
		}
	}
	if best < 0 || math.IsInf(bestLogit, -1) {
		return 0, fmt.Errorf("no eligible token in logits")
	}
	if s.temperature == 0 {
		return best, nil
	}

	s.probs = s.probs[:0]
	var total float64
	for id, l := range logits {
		if !s.eligible(id) || math.IsNaN(l) {
			continue
		}
		p := math.Exp((l - bestLogit) / s.temperature)
		if p == 0 {
			continue
		}
		s.probs = append(s.probs, candidate{id: id, p: p})
		total += p
	}
	sort.Slice(s.probs, func(i, j int) bool {
		if s.probs[i].p == s.probs[j].p {
			return s.probs[i].id < s.probs[j].id
		}
		return s.probs[i].p > s.probs[j].p
	})

	// Nucleus: keep the smallest prefix whose mass reaches top_p.
	keep, mass := 0, 0.0
	for keep < len(s.probs) {
		mass += s.probs[keep].p / total
		keep++
		if mass >= s.topP {
			break
		}
	}
	var kept float64
	for _, c := range s.probs[:keep] {
		kept += c.p
	}
	r := s.rng.Float64() * kept
	for _, c := range s.probs[:keep] {
		r -= c.p
		if r < 0 {
			return c.id, nil
		}
	}
	return s.probs[keep-1].id, nil
}
