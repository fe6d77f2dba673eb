// Package segment splits a committed sentence into the reading/surface
// segments that the history learns from.
package segment

import (
	"strings"
	"sync"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Segmenter groups morphemes into phrases: one content word followed by the
// particles, auxiliaries and suffixes attached to it. Symbols stand alone.
type Segmenter struct {
	t *tokenizer.Tokenizer
}

var (
	shared     *Segmenter
	sharedErr  error
	sharedOnce sync.Once
)

// New builds a segmenter over the bundled IPA dictionary.
func New() (*Segmenter, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Segmenter{t: t}, nil
}

// Default returns a process wide segmenter. The IPA dictionary is large, so
// it is only loaded once.
func Default() (*Segmenter, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = New()
	})
	return shared, sharedErr
}

type morpheme struct {
	surface string
	reading string
	pos     string
}

func (m morpheme) attaches() bool {
	switch m.pos {
	case "助詞", "助動詞", "接尾":
		return true
	}
	return false
}

// Segment returns the phrases of sentence in order. The key of each segment
// is its hiragana reading; words without a reading fall back to the surface.
func (s *Segmenter) Segment(sentence string) []conversion.Segment {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return nil
	}
	var morphemes []morpheme
	for _, tok := range s.t.Tokenize(sentence) {
		if tok.Surface == "" || strings.TrimSpace(tok.Surface) == "" {
			continue
		}
		morphemes = append(morphemes, toMorpheme(tok))
	}

	var (
		segments []conversion.Segment
		current  *phrase
	)
	flush := func() {
		if current != nil {
			segments = append(segments, current.segment())
			current = nil
		}
	}
	for _, m := range morphemes {
		switch {
		case m.pos == "記号":
			flush()
			segments = append(segments, conversion.Segment{
				Key:          m.reading,
				Value:        m.surface,
				ContentKey:   m.reading,
				ContentValue: m.surface,
			})
		case current != nil && (m.attaches() || subPOS(m)):
			current.attach(m)
		default:
			flush()
			current = &phrase{}
			current.content(m)
		}
	}
	flush()
	return segments
}

func subPOS(m morpheme) bool {
	return m.pos == "動詞,非自立" || m.pos == "名詞,接尾"
}

func toMorpheme(tok tokenizer.Token) morpheme {
	m := morpheme{surface: tok.Surface}
	if pos := tok.POS(); len(pos) > 0 {
		m.pos = pos[0]
		if len(pos) > 1 && (pos[1] == "非自立" || pos[1] == "接尾") {
			m.pos = pos[0] + "," + pos[1]
		}
	}
	reading, ok := tok.Reading()
	if !ok || reading == "*" || reading == "" {
		reading = tok.Surface
	}
	m.reading = kana.KatakanaToHiragana(reading)
	return m
}

type phrase struct {
	key, value               strings.Builder
	contentKey, contentValue string
}

func (p *phrase) content(m morpheme) {
	p.key.WriteString(m.reading)
	p.value.WriteString(m.surface)
	p.contentKey, p.contentValue = m.reading, m.surface
}

func (p *phrase) attach(m morpheme) {
	p.key.WriteString(m.reading)
	p.value.WriteString(m.surface)
	if m.pos == "名詞,接尾" || m.pos == "接尾" {
		p.contentKey += m.reading
		p.contentValue += m.surface
	}
}

func (p *phrase) segment() conversion.Segment {
	return conversion.Segment{
		Key:          p.key.String(),
		Value:        p.value.String(),
		ContentKey:   p.contentKey,
		ContentValue: p.contentValue,
	}
}
