package history

import (
	"strings"
	"unicode"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/bastiangx/kanaserve/pkg/conversion"
)

// minSelectedRatio is the selected/shown ratio below which a candidate that
// keeps being passed over is tombstoned.
const minSelectedRatio = 0.05

type counters struct {
	suggestion, conversion, shown uint32
}

// revertDelta is what one Finish did to one entry.
type revertDelta struct {
	created    bool
	wasRemoved bool
	// reset holds the counters of a tombstoned entry before relearning zeroed them.
	reset *counters
	added counters
}

type link struct {
	from, to uint32
}

type revertRecord struct {
	deltas map[uint32]*revertDelta
	order  []uint32
	links  []link
}

func newRevertRecord() *revertRecord {
	return &revertRecord{deltas: make(map[uint32]*revertDelta)}
}

// delta returns the record for fp, capturing the entry state the first time.
func (r *revertRecord) delta(fp uint32, existing *Entry) *revertDelta {
	if d, ok := r.deltas[fp]; ok {
		return d
	}
	d := &revertDelta{created: existing == nil}
	if existing != nil {
		d.wasRemoved = existing.Removed
	}
	r.deltas[fp] = d
	r.order = append(r.order, fp)
	return d
}

type learner struct {
	p          *Predictor
	rec        *revertRecord
	now        int64
	conversion bool
}

// learn bumps the entry for (key, value), creating or reviving it.
func (l *learner) learn(key, value, description string) (uint32, bool) {
	if key == "" || value == "" {
		return 0, false
	}
	fp := Fingerprint(key, value)
	d := l.rec.delta(fp, l.p.store.Lookup(fp))
	e, _ := l.p.store.Insert(fp)
	e.Key = key
	e.Value = value
	if e.Removed {
		if d.reset == nil {
			d.reset = &counters{e.SuggestionFreq, e.ConversionFreq, e.ShownFreq}
		}
		e.SuggestionFreq, e.ConversionFreq, e.ShownFreq = 0, 0, 0
		e.Removed = false
	}
	if l.conversion {
		e.ConversionFreq++
		d.added.conversion++
	} else {
		e.SuggestionFreq++
		d.added.suggestion++
	}
	e.ShownFreq++
	d.added.shown++
	e.LastAccessTime = l.now
	if description != "" {
		e.Description = description
	}
	return fp, true
}

func (l *learner) link(from, to uint32) {
	e := l.p.store.Lookup(from)
	if e == nil {
		return
	}
	if e.AddNext(to) {
		l.rec.links = append(l.rec.links, link{from, to})
	}
}

// canLink reports whether a chain edge prev -> cur may be learned. Nothing
// follows a sentence end. A commit that opens with punctuation glued to more
// text is not chained to the history before it.
func canLink(prevValue, curValue string, fromHistory bool) bool {
	if kana.IsSentenceEnding(prevValue) {
		return false
	}
	if fromHistory && kana.StartsWithPunctuation(curValue) && !kana.IsPunctuation(curValue) {
		return false
	}
	return true
}

// IsPrivacySensitive reports commits that must not be learned: a bare ASCII
// number typed and committed as is. Multi-segment commits are never treated as
// sensitive.
func IsPrivacySensitive(segments []conversion.InnerSegment) bool {
	if len(segments) != 1 {
		return false
	}
	s := segments[0]
	return s.Key == s.Value && kana.IsASCIIDigits(s.Value)
}

func trimTrailingSpace(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// Finish learns results[0], the committed candidate, and records what it
// changed under revertID. results[1:] are the candidates that were shown and
// passed over.
func (p *Predictor) Finish(req *conversion.Request, results []conversion.Result, revertID string) {
	if req == nil || len(results) == 0 || !req.CanLearn() {
		return
	}
	committed := results[0]
	key := trimTrailingSpace(committed.Key)
	value := trimTrailingSpace(committed.Value)
	if key == "" || value == "" {
		return
	}
	segments := conversion.InnerSegments(key, value, committed.InnerSegmentBoundary)
	if len(segments) == 0 {
		segments = []conversion.InnerSegment{{Key: key, Value: value, ContentKey: key, ContentValue: value}}
	}
	if IsPrivacySensitive(segments) {
		p.log.Debug("skip privacy sensitive commit")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	l := &learner{
		p:          p,
		rec:        newRevertRecord(),
		now:        p.clock.Now().Unix(),
		conversion: req.Type == conversion.Conversion,
	}

	var prevFP uint32
	var prevValue string
	hasPrev, fromHistory := false, false
	if last, ok := req.LastHistory(); ok {
		fp := Fingerprint(last.Key, last.Value)
		if p.store.Lookup(fp) != nil {
			prevFP, prevValue, hasPrev, fromHistory = fp, last.Value, true, true
		}
	}

	var description string
	if len(segments) == 1 {
		description = committed.Description
	}

	for _, seg := range segments {
		fp, ok := l.learn(seg.Key, seg.Value, description)
		if !ok {
			continue
		}
		target := fp
		if req.MixedConversion {
			if cfp, ok := l.learnContent(seg); ok {
				target = cfp
			}
		}
		if hasPrev && canLink(prevValue, seg.Value, fromHistory) {
			l.link(prevFP, target)
		}
		prevFP, prevValue, hasPrev, fromHistory = fp, seg.Value, true, false
	}
	if len(segments) > 1 && !req.IsMobile() {
		l.learn(key, value, "")
	}

	committedFP := Fingerprint(key, value)
	for _, r := range results[1:] {
		p.markUnselected(l.rec, Fingerprint(r.Key, r.Value), committedFP)
	}

	p.reverts.Add(revertID, l.rec)
	p.stats.Learned++
}

// learnContent learns the content word of seg, "東京" out of "東京から", so
// the chain can continue from it. It returns the content word fingerprint.
func (l *learner) learnContent(seg conversion.InnerSegment) (uint32, bool) {
	if seg.ContentValue == "" || seg.ContentValue == seg.Value || seg.ContentKey == "" {
		return 0, false
	}
	return l.learn(seg.ContentKey, seg.ContentValue, "")
}

// markUnselected counts one more showing of a passed-over candidate and
// tombstones it once it is rarely picked.
func (p *Predictor) markUnselected(rec *revertRecord, fp, committed uint32) {
	if fp == committed {
		return
	}
	e := p.store.Lookup(fp)
	if e == nil {
		return
	}
	d := rec.delta(fp, e)
	e.ShownFreq++
	d.added.shown++
	selected := float64(e.SuggestionFreq + e.ConversionFreq)
	if selected/float64(e.ShownFreq) < minSelectedRatio {
		e.Removed = true
	}
}

// Revert undoes the Finish recorded under revertID. Unknown ids are ignored.
func (p *Predictor) Revert(revertID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.reverts.Get(revertID)
	if !ok {
		return
	}
	p.reverts.Remove(revertID)

	for _, l := range rec.links {
		if e := p.store.Lookup(l.from); e != nil {
			EraseNextEntries(l.to, e)
		}
	}
	for _, fp := range rec.order {
		d := rec.deltas[fp]
		e := p.store.Lookup(fp)
		if e == nil {
			continue
		}
		if d.reset != nil {
			e.SuggestionFreq, e.ConversionFreq, e.ShownFreq = d.reset.suggestion, d.reset.conversion, d.reset.shown
		} else {
			e.SuggestionFreq = sub(e.SuggestionFreq, d.added.suggestion)
			e.ConversionFreq = sub(e.ConversionFreq, d.added.conversion)
			e.ShownFreq = sub(e.ShownFreq, d.added.shown)
		}
		e.Removed = d.wasRemoved
		if d.created && e.SuggestionFreq == 0 && e.ConversionFreq == 0 {
			p.store.Erase(fp)
		}
	}
	p.stats.Reverted++
}

func sub(a, b uint32) uint32 {
	if b > a {
		return 0
	}
	return a - b
}
