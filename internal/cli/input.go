// Package cli is an interactive prompt for trying predictions and learning
// by hand. It drives the same predictor the IPC server uses.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bastiangx/kanaserve/internal/kana"
	"github.com/bastiangx/kanaserve/internal/utils"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/history"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Predictor is the part of the engine the prompt drives.
type Predictor interface {
	Predict(ctx context.Context, req *conversion.Request) ([]conversion.Result, error)
	Finish(req *conversion.Request, results []conversion.Result, revertID string)
	Revert(revertID string)
	ClearHistoryEntry(key, value string) bool
	Stats() history.Stats
}

// Segmenter splits a sentence for :learn.
type Segmenter interface {
	Segment(sentence string) []conversion.Segment
}

// InputHandler reads one command per line. A bare line is a suggestion
// request for that reading; lines starting with ':' are commands.
type InputHandler struct {
	predictor    Predictor
	segmenter    Segmenter
	maxKeyLen    int
	suggestLimit int
	log          *log.Logger

	// last commit, fed back as history and used by :undo
	lastSegment  *conversion.Segment
	lastRevertID string
	requestCount int
}

// NewInputHandler builds a prompt. segmenter may be nil.
func NewInputHandler(p Predictor, segmenter Segmenter, maxKeyLen, limit int, logger *log.Logger) *InputHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &InputHandler{
		predictor:    p,
		segmenter:    segmenter,
		maxKeyLen:    maxKeyLen,
		suggestLimit: limit,
		log:          logger,
	}
}

// Start runs the prompt until r ends.
func (h *InputHandler) Start(ctx context.Context, r io.Reader) error {
	h.log.Print("KanaServe CLI")
	h.log.Print("type a reading and press Enter to see suggestions, :help for commands (Ctrl+C to exit)")
	reader := bufio.NewReader(r)
	for {
		h.log.Print("> ")
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			h.handleInput(ctx, line)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (h *InputHandler) handleInput(ctx context.Context, line string) {
	h.requestCount++
	if !strings.HasPrefix(line, ":") {
		h.predict(ctx, conversion.Suggestion, line)
		return
	}
	cmd, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)
	switch cmd {
	case ":p", ":predict":
		if len(args) != 1 {
			h.log.Error("usage: :p <reading>")
			return
		}
		h.predict(ctx, conversion.Prediction, args[0])
	case ":c", ":commit":
		if len(args) != 2 {
			h.log.Error("usage: :c <reading> <value>")
			return
		}
		h.commit([]conversion.Segment{{Key: normalize(args[0]), Value: args[1]}})
	case ":l", ":learn":
		h.learn(strings.TrimSpace(rest))
	case ":u", ":undo":
		if h.lastRevertID == "" {
			h.log.Warn("nothing to undo")
			return
		}
		h.predictor.Revert(h.lastRevertID)
		h.lastRevertID, h.lastSegment = "", nil
		h.log.Info("last commit reverted")
	case ":f", ":forget":
		if len(args) != 2 {
			h.log.Error("usage: :f <reading> <value>")
			return
		}
		if h.predictor.ClearHistoryEntry(normalize(args[0]), args[1]) {
			h.log.Infof("forgot %s", args[1])
		} else {
			h.log.Warnf("%s is not in the history", args[1])
		}
	case ":s", ":stats":
		st := h.predictor.Stats()
		h.log.Info("history",
			"entries", formatWithCommas(st.Entries),
			"capacity", formatWithCommas(st.Capacity),
			"learned", st.Learned,
			"reverted", st.Reverted,
			"syncs", st.Syncs)
	case ":r", ":reset":
		h.lastSegment = nil
		h.log.Info("context cleared")
	case ":h", ":help":
		h.log.Print(":p <reading>           prediction instead of suggestion")
		h.log.Print(":c <reading> <value>   commit a candidate")
		h.log.Print(":l <sentence>          learn a sentence")
		h.log.Print(":u                     undo the last commit")
		h.log.Print(":f <reading> <value>   forget a pair")
		h.log.Print(":r                     clear the committed context")
		h.log.Print(":s                     history stats")
	default:
		h.log.Errorf("unknown command %s, try :help", cmd)
	}
}

// normalize folds the width and script of typed readings so "ﾜﾀｼ" and
// "ワタシ" both look up "わたし".
func normalize(key string) string {
	return kana.KatakanaToHiragana(kana.NormalizeKey(key))
}

func (h *InputHandler) predict(ctx context.Context, typ conversion.RequestType, input string) {
	key := normalize(input)
	if err := utils.ValidateKey(key, h.maxKeyLen); err != nil {
		h.log.Errorf("invalid reading %q: %v", input, err)
		return
	}
	req := &conversion.Request{Type: typ, Key: key}
	if h.lastSegment != nil {
		req.History = []conversion.Segment{*h.lastSegment}
	}

	start := time.Now()
	results, err := h.predictor.Predict(ctx, req)
	if err != nil {
		h.log.Errorf("prediction failed: %v", err)
		return
	}
	h.log.Debugf("Took [ %v ] for '%s'", time.Since(start), key)
	if len(results) > h.suggestLimit && h.suggestLimit > 0 {
		results = results[:h.suggestLimit]
	}
	if len(results) == 0 {
		h.log.Warnf("No suggestions found for '%s'", key)
		return
	}
	h.log.Printf("Found %d suggestions for '%s':", len(results), key)
	for i, r := range results {
		value := fmt.Sprintf("\033[38;5;75m%s\033[0m", r.Value)
		h.log.Printf("%2d. %-30s %-20s (cost: %8s)", i+1, value, r.Key, formatWithCommas(r.Cost))
	}
}

func (h *InputHandler) commit(segments []conversion.Segment) {
	for _, seg := range segments {
		if err := utils.ValidatePair(seg.Key, seg.Value, h.maxKeyLen); err != nil {
			h.log.Errorf("cannot commit %q: %v", seg.Value, err)
			return
		}
	}
	revertID := uuid.NewString()
	req := &conversion.Request{Type: conversion.Prediction}
	if h.lastSegment != nil {
		req.History = []conversion.Segment{*h.lastSegment}
	}
	h.predictor.Finish(req, conversion.MakeLearningResults(segments), revertID)
	last := segments[len(segments)-1]
	h.lastSegment, h.lastRevertID = &last, revertID
	h.log.Infof("learned %d segment(s)", len(segments))
}

func (h *InputHandler) learn(sentence string) {
	if h.segmenter == nil {
		h.log.Error("sentence learning is not available")
		return
	}
	if sentence == "" {
		h.log.Error("usage: :l <sentence>")
		return
	}
	var segments []conversion.Segment
	for _, s := range h.segmenter.Segment(sentence) {
		if utils.IsLearnable(s.Value) {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		h.log.Warn("nothing to learn")
		return
	}
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s.Value + "(" + s.Key + ")"
	}
	h.log.Debug("segmented", "parts", strings.Join(parts, " | "))
	h.commit(segments)
}

// formatWithCommas formats an integer with comma separators
func formatWithCommas(n int) string {
	if n < 0 {
		return "-" + formatWithCommas(-n)
	}
	str := fmt.Sprintf("%d", n)
	if n < 1000 {
		return str
	}
	var b strings.Builder
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(char)
	}
	return b.String()
}
