package dictionary

import (
	"strings"
	"unicode/utf8"

	"github.com/bastiangx/kanaserve/pkg/conversion"
)

const (
	// unknownWordCost is charged for a character no token covers.
	unknownWordCost = 10000
	// maxNodesPerPosition bounds the tokens tried at one lattice position.
	maxNodesPerPosition = 64
)

// Decoder converts a whole reading into its cheapest segmentation over the
// dictionary, scoring transitions with a Connector.
type Decoder struct {
	dict *Loader
	conn Connector
	pos  PosMatcher
}

func NewDecoder(dict *Loader, conn Connector, pos PosMatcher) *Decoder {
	return &Decoder{dict: dict, conn: conn, pos: pos}
}

type latticeNode struct {
	token Token
	total int
	prev  *latticeNode
}

// Decode returns the best conversion of req.Key as a REALTIME_TOP result
// with one inner segment per token, or nil for an empty key.
func (d *Decoder) Decode(req *conversion.Request) []conversion.Result {
	key := req.Key
	if key == "" {
		return nil
	}

	var bosRid uint16
	if last, ok := req.LastHistory(); ok {
		bosRid = last.Rid
	}
	ends := make([][]*latticeNode, len(key)+1)
	ends[0] = []*latticeNode{{token: Token{Rid: bosRid}}}

	for begin := 0; begin < len(key); {
		_, size := utf8.DecodeRuneInString(key[begin:])
		if len(ends[begin]) > 0 {
			for _, tok := range d.candidates(key[begin:], size) {
				end := begin + len(tok.Key)
				ends[end] = append(ends[end], d.bestLink(ends[begin], tok))
			}
		}
		begin += size
	}

	var best *latticeNode
	bestCost := 0
	for _, n := range ends[len(key)] {
		cost := n.total + d.conn.GetTransitionCost(n.token.Rid, 0)
		if best == nil || cost < bestCost {
			best, bestCost = n, cost
		}
	}
	if best == nil {
		return nil
	}

	var path []*latticeNode
	for n := best; n.prev != nil; n = n.prev {
		path = append(path, n)
	}
	var value strings.Builder
	boundary := make([]uint32, 0, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		t := path[i].token
		value.WriteString(t.Value)
		if encoded, ok := conversion.EncodeLengths(len(t.Key), len(t.Value), len(t.Key), len(t.Value)); ok && boundary != nil {
			boundary = append(boundary, encoded)
		} else {
			boundary = nil
		}
	}
	first, last := path[len(path)-1].token, path[0].token
	r := conversion.Result{
		Key:                  key,
		Value:                value.String(),
		Wcost:                best.total - d.conn.GetTransitionCost(bosRid, first.Lid),
		Lid:                  first.Lid,
		Rid:                  last.Rid,
		InnerSegmentBoundary: boundary,
	}
	r.SetTypesAndTokenAttributes(conversion.Realtime|conversion.RealtimeTop, 0)
	return []conversion.Result{r}
}

// candidates returns the tokens starting at the head of rest, plus a single
// character fallback when no token covers exactly that character.
func (d *Decoder) candidates(rest string, firstSize int) []Token {
	tokens := d.dict.LookupPrefix(rest)
	if len(tokens) > maxNodesPerPosition {
		tokens = tokens[:maxNodesPerPosition]
	}
	for _, t := range tokens {
		if len(t.Key) == firstSize {
			return tokens
		}
	}
	ch := rest[:firstSize]
	return append(tokens, Token{
		Key:   ch,
		Value: ch,
		Lid:   d.pos.Unknown,
		Rid:   d.pos.Unknown,
		Cost:  unknownWordCost,
	})
}

func (d *Decoder) bestLink(prevs []*latticeNode, tok Token) *latticeNode {
	n := &latticeNode{token: tok}
	for _, p := range prevs {
		total := p.total + d.conn.GetTransitionCost(p.token.Rid, tok.Lid) + tok.Cost
		if n.prev == nil || total < n.total {
			n.prev, n.total = p, total
		}
	}
	return n
}
