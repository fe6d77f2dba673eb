/*
Package dictionary is the read-only system dictionary behind the reranker.

Tokens are stored in numbered chunk files (dict_0001.bin, dict_0002.bin, ...)
that a Loader reads lazily into a patricia trie keyed by reading. The package
also carries the connection cost Matrix, the PosMatcher ids the reranker
needs and the Aggregator that turns a request into raw candidate Results.
*/
package dictionary

import (
	"github.com/bastiangx/kanaserve/pkg/conversion"
)

// Token is one dictionary word: a reading, its surface and its costs.
type Token struct {
	Key        string
	Value      string
	Lid        uint16
	Rid        uint16
	Cost       int
	Attributes conversion.TokenAttribute
}

// Result converts t into a pipeline Result of the given types.
func (t Token) Result(types conversion.ResultType) conversion.Result {
	r := conversion.Result{
		Key:   t.Key,
		Value: t.Value,
		Wcost: t.Cost,
		Lid:   t.Lid,
		Rid:   t.Rid,
	}
	r.SetTypesAndTokenAttributes(types, t.Attributes)
	return r
}
