/*
Package server implements msgpack IPC for the kanaserve prediction engine.

The server reads a stream of msgpack maps from stdin and writes one msgpack map
per request to stdout. msgpack values are self delimiting, so no extra framing
is needed. Logs go to stderr only.

# IPC

Every request carries an "op" and an optional "id". The id is echoed in the
response; the server generates one when the client sends none.

A prediction request for the composition "わた" after the user committed "今日は":

	{"id": "req_001", "op": "predict", "type": "suggestion", "k": "わた", "h": [{"k": "きょうは", "v": "今日は"}]}

The server answers with the ranked candidates, the count and the time taken in
microseconds:

	{"id": "req_001", "s": [{"k": "わたしの", "v": "私の", "c": 0}], "n": 1, "t": 210}

Committing learns the chosen segments and returns a revert id that undoes the
commit when sent back with "revert":

	{"id": "req_002", "op": "finish", "type": "prediction", "segments": [{"k": "わたしの", "v": "私の"}]}
	{"id": "req_002", "status": "ok", "revert_id": "6f1c..."}

The remaining ops are "learn" (segment and learn a raw sentence), "clear"
(scope "all" or "unused"), "forget" (drop one key/value pair), "sync" (persist
the history in the background), "stats" and "health".

# Errors

A request that cannot be served gets an ErrorResponse with a 4xx or 5xx code.
A frame that is not msgpack at all ends the stream.
*/
package server

import (
	"github.com/bastiangx/kanaserve/pkg/conversion"
)

const (
	OpPredict = "predict"
	OpFinish  = "finish"
	OpLearn   = "learn"
	OpRevert  = "revert"
	OpClear   = "clear"
	OpForget  = "forget"
	OpSync    = "sync"
	OpStats   = "stats"
	OpHealth  = "health"
)

// Request is the envelope of every op. Fields an op does not use are ignored.
type Request struct {
	ID string `msgpack:"id"`
	Op string `msgpack:"op"`

	// Type is the request type name: conversion, prediction, suggestion,
	// partial_prediction or partial_suggestion.
	Type        string               `msgpack:"type,omitempty"`
	Key         string               `msgpack:"k,omitempty"`
	KeyBase     string               `msgpack:"kb,omitempty"`
	KeyExpanded []string             `msgpack:"kx,omitempty"`
	Kana        bool                 `msgpack:"kana,omitempty"`
	History     []conversion.Segment `msgpack:"h,omitempty"`
	Limit       int                  `msgpack:"l,omitempty"`

	ZeroQuery   bool `msgpack:"zero_query,omitempty"`
	Handwriting bool `msgpack:"handwriting,omitempty"`
	Incognito   bool `msgpack:"incognito,omitempty"`
	Debug       bool `msgpack:"debug,omitempty"`

	// finish
	Segments  []conversion.Segment `msgpack:"segments,omitempty"`
	Candidate *Candidate           `msgpack:"candidate,omitempty"`
	RevertID  string               `msgpack:"revert_id,omitempty"`

	// learn
	Text string `msgpack:"text,omitempty"`

	// forget
	Value string `msgpack:"v,omitempty"`

	// clear: "all" or "unused"
	Scope string `msgpack:"scope,omitempty"`
}

// Candidate is one ranked suggestion. Boundary carries the inner segment
// boundary of realtime conversions; clients echo the candidate back on
// finish so the inner segments are learned too.
type Candidate struct {
	Key         string   `msgpack:"k"`
	Value       string   `msgpack:"v"`
	Cost        int      `msgpack:"c"`
	Description string   `msgpack:"d,omitempty"`
	Boundary    []uint32 `msgpack:"b,omitempty"`
}

// PredictResponse answers predict.
type PredictResponse struct {
	ID         string      `msgpack:"id"`
	Candidates []Candidate `msgpack:"s"`
	Count      int         `msgpack:"n"`
	TimeTaken  int64       `msgpack:"t"`
}

// StatusResponse answers the ops that only report success.
type StatusResponse struct {
	ID       string `msgpack:"id"`
	Status   string `msgpack:"status"`
	RevertID string `msgpack:"revert_id,omitempty"`
	// Count is the number of learned segments for learn, 1 or 0 for forget.
	Count int `msgpack:"count,omitempty"`
}

// StatsResponse reports the history counters.
type StatsResponse struct {
	ID           string `msgpack:"id"`
	Mode         string `msgpack:"mode"`
	Entries      int    `msgpack:"entries"`
	Capacity     int    `msgpack:"capacity"`
	Evicted      int    `msgpack:"evicted"`
	Learned      int    `msgpack:"learned"`
	Reverted     int    `msgpack:"reverted"`
	Syncs        int    `msgpack:"syncs"`
	SyncFailures int    `msgpack:"sync_failures"`
	Pruned       int    `msgpack:"pruned"`
	Loaded       int    `msgpack:"loaded"`
	Discarded    int    `msgpack:"discarded"`
}

// ErrorResponse holds basic error information for a failed request.
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
