package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bastiangx/kanaserve/internal/logger"
	"github.com/bastiangx/kanaserve/internal/utils"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/history"
	"github.com/bastiangx/kanaserve/pkg/predictor"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Predictor is what the server needs from the prediction engine.
type Predictor interface {
	Predict(ctx context.Context, req *conversion.Request) ([]conversion.Result, error)
	Finish(req *conversion.Request, results []conversion.Result, revertID string)
	Revert(revertID string)
	ClearAllHistory() bool
	ClearUnusedHistory() bool
	ClearHistoryEntry(key, value string) bool
	Sync() bool
	Stats() history.Stats
	Mode() predictor.Mode
}

// Segmenter splits a raw sentence into committed segments for learn.
type Segmenter interface {
	Segment(sentence string) []conversion.Segment
}

// Options are the request limits. They can change while the server runs.
type Options struct {
	// MaxLimit caps the candidates a predict response may carry.
	MaxLimit int
	// MaxKeyLen caps keys and values in characters. 0 disables the check.
	MaxKeyLen int
	// AutoPartialSuggestion is copied into every prediction request.
	AutoPartialSuggestion bool
}

const defaultMaxLimit = 100

// Server handles the IPC for predictions and learning.
type Server struct {
	predictor Predictor
	segmenter Segmenter
	decoder   *msgpack.Decoder
	writer    *bufio.Writer
	encoder   *msgpack.Encoder
	log       *log.Logger

	mu       sync.RWMutex
	opts     Options
	requests int
}

// NewServer creates a server using stdin/stdout for IPC. segmenter may be
// nil, which disables learn.
func NewServer(p Predictor, segmenter Segmenter, opts Options) *Server {
	return New(p, segmenter, os.Stdin, os.Stdout, opts)
}

// New creates a server over arbitrary streams.
func New(p Predictor, segmenter Segmenter, r io.Reader, w io.Writer, opts Options) *Server {
	bw := bufio.NewWriter(w)
	enc := msgpack.NewEncoder(bw)
	enc.UseCompactInts(true)
	return &Server{
		predictor: p,
		segmenter: segmenter,
		decoder:   msgpack.NewDecoder(bufio.NewReader(r)),
		writer:    bw,
		encoder:   enc,
		log:       logger.New("server"),
		opts:      opts.normalize(),
	}
}

func (o Options) normalize() Options {
	if o.MaxLimit < 1 {
		o.MaxLimit = defaultMaxLimit
	}
	if o.MaxKeyLen < 0 {
		o.MaxKeyLen = 0
	}
	return o
}

// SetOptions replaces the request limits.
func (s *Server) SetOptions(opts Options) {
	s.mu.Lock()
	s.opts = opts.normalize()
	s.mu.Unlock()
}

func (s *Server) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Requests returns how many requests were handled.
func (s *Server) Requests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests
}

// Start signals readiness and serves requests until the input ends or ctx
// is canceled. A clean end of input returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.log.Debug("Starting server")

	s.sendResponse(StatusResponse{Status: "ready"})

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		raw, err := s.decoder.DecodeRaw()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Debug("Client disconnected")
				return nil
			}
			s.log.Errorf("Reading request: %v", err)
			return fmt.Errorf("read request: %w", err)
		}
		s.handleRequest(ctx, raw)
	}
}

// handleRequest decodes one frame and dispatches on its op.
func (s *Server) handleRequest(ctx context.Context, raw msgpack.RawMessage) {
	var req Request
	if err := msgpack.Unmarshal(raw, &req); err != nil {
		s.sendError("", "Invalid msgpack request", 400)
		s.log.Errorf("Unmarshaling request: %v", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()

	switch req.Op {
	case OpPredict:
		s.handlePredict(ctx, req)
	case OpFinish:
		s.handleFinish(req)
	case OpLearn:
		s.handleLearn(req)
	case OpRevert:
		s.handleRevert(req)
	case OpClear:
		s.handleClear(req)
	case OpForget:
		s.handleForget(req)
	case OpSync:
		if !s.predictor.Sync() {
			s.sendError(req.ID, "History is not persisted", 503)
			return
		}
		s.sendOK(req.ID)
	case OpStats:
		s.handleStats(req)
	case OpHealth:
		s.sendResponse(StatusResponse{ID: req.ID, Status: "ok"})
	default:
		s.sendError(req.ID, fmt.Sprintf("Unknown op: %q", req.Op), 400)
	}
}

// conversionRequest builds the engine request from the wire fields.
func (s *Server) conversionRequest(req Request, defaultType conversion.RequestType) *conversion.Request {
	typ := defaultType
	if req.Type != "" {
		typ = conversion.ParseRequestType(req.Type)
	}
	cr := &conversion.Request{
		Type:                  typ,
		Key:                   req.Key,
		KeyBase:               req.KeyBase,
		KeyExpanded:           req.KeyExpanded,
		History:               req.History,
		ZeroQuerySuggestion:   req.ZeroQuery,
		AutoPartialSuggestion: s.options().AutoPartialSuggestion,
		Handwriting:           req.Handwriting,
		Incognito:             req.Incognito,
		Debug:                 req.Debug,
	}
	if req.Kana {
		cr.PreeditMethod = conversion.Kana
	}
	return cr
}

func (s *Server) handlePredict(ctx context.Context, req Request) {
	opts := s.options()
	if err := utils.ValidateKey(req.Key, opts.MaxKeyLen); err != nil {
		s.sendError(req.ID, err.Error(), 400)
		s.log.Debugf("Rejected key %q: %v", req.Key, err)
		return
	}
	for _, seg := range req.History {
		if err := utils.ValidatePair(seg.Key, seg.Value, opts.MaxKeyLen); err != nil {
			s.sendError(req.ID, "Invalid history segment: "+err.Error(), 400)
			return
		}
	}
	limit := req.Limit
	if limit < 1 || limit > opts.MaxLimit {
		limit = opts.MaxLimit
	}

	start := time.Now()
	results, err := s.predictor.Predict(ctx, s.conversionRequest(req, conversion.Suggestion))
	if err != nil {
		s.sendError(req.ID, "Prediction failed", 500)
		s.log.Errorf("Predict %q: %v", req.Key, err)
		return
	}
	if len(results) > limit {
		results = results[:limit]
	}
	candidates := make([]Candidate, len(results))
	for i, r := range results {
		candidates[i] = Candidate{
			Key:         r.Key,
			Value:       r.Value,
			Cost:        r.Cost,
			Description: r.Description,
			Boundary:    r.InnerSegmentBoundary,
		}
	}
	s.sendResponse(PredictResponse{
		ID:         req.ID,
		Candidates: candidates,
		Count:      len(candidates),
		TimeTaken:  time.Since(start).Microseconds(),
	})
}

// handleFinish learns a commit given either as segments or as the chosen
// candidate.
func (s *Server) handleFinish(req Request) {
	maxLen := s.options().MaxKeyLen
	var results []conversion.Result
	switch c := req.Candidate; {
	case c != nil && len(req.Segments) > 0:
		s.sendError(req.ID, "Send either 'segments' or 'candidate'", 400)
		return
	case c != nil:
		if err := utils.ValidatePair(c.Key, c.Value, maxLen); err != nil {
			s.sendError(req.ID, "Invalid candidate: "+err.Error(), 400)
			return
		}
		r := conversion.Result{
			Key:                  c.Key,
			Value:                c.Value,
			Cost:                 c.Cost,
			Description:          c.Description,
			InnerSegmentBoundary: c.Boundary,
		}
		types := conversion.Unigram
		if len(c.Boundary) > 0 {
			types = conversion.Realtime
		}
		r.SetTypesAndTokenAttributes(types, 0)
		results = []conversion.Result{r}
	default:
		for _, seg := range req.Segments {
			if err := utils.ValidatePair(seg.Key, seg.Value, maxLen); err != nil {
				s.sendError(req.ID, "Invalid segment: "+err.Error(), 400)
				return
			}
		}
		results = conversion.MakeLearningResults(req.Segments)
	}
	if len(results) == 0 {
		s.sendError(req.ID, "Nothing to learn", 400)
		return
	}
	revertID := req.RevertID
	if revertID == "" {
		revertID = uuid.NewString()
	}
	s.predictor.Finish(s.conversionRequest(req, conversion.Prediction), results, revertID)
	s.sendResponse(StatusResponse{ID: req.ID, Status: "ok", RevertID: revertID, Count: max(len(req.Segments), 1)})
}

// handleLearn segments a raw sentence and learns it as one commit. Segments
// that are bare numbers or one repeated character are skipped.
func (s *Server) handleLearn(req Request) {
	if s.segmenter == nil {
		s.sendError(req.ID, "Sentence learning is not available", 501)
		return
	}
	if req.Text == "" {
		s.sendError(req.ID, "Missing 'text' parameter", 400)
		return
	}
	var kept []conversion.Segment
	for _, seg := range s.segmenter.Segment(req.Text) {
		if !utils.IsLearnable(seg.Value) {
			s.log.Debugf("Skipping segment %q", seg.Value)
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		s.sendResponse(StatusResponse{ID: req.ID, Status: "ok"})
		return
	}
	revertID := req.RevertID
	if revertID == "" {
		revertID = uuid.NewString()
	}
	s.predictor.Finish(s.conversionRequest(req, conversion.Prediction), conversion.MakeLearningResults(kept), revertID)
	s.sendResponse(StatusResponse{ID: req.ID, Status: "ok", RevertID: revertID, Count: len(kept)})
}

func (s *Server) handleRevert(req Request) {
	if req.RevertID == "" {
		s.sendError(req.ID, "Missing 'revert_id' parameter", 400)
		return
	}
	s.predictor.Revert(req.RevertID)
	s.sendOK(req.ID)
}

func (s *Server) handleClear(req Request) {
	var ok bool
	switch req.Scope {
	case "", "all":
		ok = s.predictor.ClearAllHistory()
	case "unused":
		ok = s.predictor.ClearUnusedHistory()
	default:
		s.sendError(req.ID, fmt.Sprintf("Unknown scope: %q", req.Scope), 400)
		return
	}
	if !ok {
		s.sendError(req.ID, "Clearing history failed", 500)
		return
	}
	s.sendOK(req.ID)
}

func (s *Server) handleForget(req Request) {
	if err := utils.ValidatePair(req.Key, req.Value, s.options().MaxKeyLen); err != nil {
		s.sendError(req.ID, err.Error(), 400)
		return
	}
	count := 0
	if s.predictor.ClearHistoryEntry(req.Key, req.Value) {
		count = 1
	}
	s.sendResponse(StatusResponse{ID: req.ID, Status: "ok", Count: count})
}

func (s *Server) handleStats(req Request) {
	st := s.predictor.Stats()
	s.sendResponse(StatsResponse{
		ID:           req.ID,
		Mode:         s.predictor.Mode().String(),
		Entries:      st.Entries,
		Capacity:     st.Capacity,
		Evicted:      st.Evicted,
		Learned:      st.Learned,
		Reverted:     st.Reverted,
		Syncs:        st.Syncs,
		SyncFailures: st.SyncFailures,
		Pruned:       st.Pruned,
		Loaded:       st.Loaded,
		Discarded:    st.Discarded,
	})
}

func (s *Server) sendOK(id string) {
	s.sendResponse(StatusResponse{ID: id, Status: "ok"})
}

// sendResponse encodes response as one msgpack value and flushes it.
func (s *Server) sendResponse(response any) {
	if err := s.encoder.Encode(response); err != nil {
		s.log.Errorf("Encoding response: %v", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.log.Errorf("Writing response: %v", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(id, message string, code int) {
	s.sendResponse(ErrorResponse{ID: id, Error: message, Code: code})
}
