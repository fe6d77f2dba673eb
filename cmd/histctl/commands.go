package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bastiangx/kanaserve/internal/engine"
	"github.com/bastiangx/kanaserve/internal/segment"
	"github.com/bastiangx/kanaserve/internal/utils"
	"github.com/bastiangx/kanaserve/pkg/conversion"
	"github.com/bastiangx/kanaserve/pkg/dictionary"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.String())
}

func newDumpCommand(a *app) *cobra.Command {
	var limit int
	var all bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "List stored entries, most recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openHistory()
			if err != nil {
				return err
			}
			var rows [][]string
			for _, e := range h.Entries() {
				if e.Removed && !all {
					continue
				}
				if limit > 0 && len(rows) >= limit {
					break
				}
				rows = append(rows, []string{
					e.Key,
					e.Value,
					strconv.FormatUint(uint64(e.SuggestionFreq), 10),
					strconv.FormatUint(uint64(e.ConversionFreq), 10),
					time.Unix(e.LastAccessTime, 0).Format(time.DateTime),
					strconv.FormatBool(e.Removed),
				})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "history is empty")
				return nil
			}
			renderTable(cmd.OutOrStdout(),
				[]string{"reading", "value", "suggested", "converted", "last used", "removed"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n entries")
	cmd.Flags().BoolVar(&all, "all", false, "include removed entries")
	return cmd
}

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show history counters and limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openHistory()
			if err != nil {
				return err
			}
			s, l := h.Stats(), h.Limits()
			removed := 0
			for _, e := range h.Entries() {
				if e.Removed {
					removed++
				}
			}
			renderTable(cmd.OutOrStdout(), []string{"name", "value"}, [][]string{
				{"entries", strconv.Itoa(s.Entries)},
				{"removed", strconv.Itoa(removed)},
				{"capacity", strconv.Itoa(s.Capacity)},
				{"discarded", strconv.Itoa(s.Discarded)},
				{"cache_store_size", strconv.Itoa(l.CacheStoreSize)},
				{"entry_lifetime_days", strconv.Itoa(l.EntryLifetimeDays)},
				{"max_prediction_candidates", strconv.Itoa(l.MaxPredictionCandidates)},
				{"max_zero_query_candidates", strconv.Itoa(l.MaxZeroQueryCandidates)},
			})
			return nil
		},
	}
}

func newLearnCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "learn <sentence>",
		Short: "Segment a sentence and learn it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seg, err := segment.Default()
			if err != nil {
				return fmt.Errorf("segmenter: %w", err)
			}
			h, err := a.openHistory()
			if err != nil {
				return err
			}
			var segs []conversion.Segment
			for _, s := range seg.Segment(args[0]) {
				if utils.IsLearnable(s.Value) {
					segs = append(segs, s)
				}
			}
			if len(segs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to learn")
				return nil
			}
			req := &conversion.Request{Type: conversion.Prediction}
			h.Finish(req, conversion.MakeLearningResults(segs), uuid.NewString())
			if err := commit(h); err != nil {
				return err
			}
			for _, s := range segs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Key, s.Value)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "learned %d segment(s)\n", len(segs))
			return nil
		},
	}
}

func newPredictCommand(a *app) *cobra.Command {
	var reqType string
	var limit int
	cmd := &cobra.Command{
		Use:   "predict <reading>",
		Short: "Predict candidates for a reading with the full engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateKey(args[0], a.cfg.Server.MaxKeyLen); err != nil {
				return err
			}
			paths, err := a.paths()
			if err != nil {
				return err
			}
			eng, err := engine.New(a.cfg, paths)
			if err != nil {
				return err
			}
			defer eng.Close()

			req := &conversion.Request{
				Type: conversion.ParseRequestType(reqType),
				Key:  args[0],
			}
			results, err := eng.Predictor.Predict(cmd.Context(), req)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no candidates for %s\n", args[0])
				return nil
			}
			rows := make([][]string, 0, len(results))
			for i, r := range results {
				if limit > 0 && i >= limit {
					break
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), r.Value, r.Key, strconv.Itoa(r.Cost)})
			}
			renderTable(cmd.OutOrStdout(), []string{"#", "value", "reading", "cost"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reqType, "type", "t", "prediction", "request type: suggestion, prediction, conversion, partial_prediction, partial_suggestion")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum candidates")
	return cmd
}

func newForgetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <reading> <value>",
		Short: "Remove one reading/value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidatePair(args[0], args[1], a.cfg.Server.MaxKeyLen); err != nil {
				return err
			}
			h, err := a.openHistory()
			if err != nil {
				return err
			}
			if !h.ClearHistoryEntry(args[0], args[1]) {
				return fmt.Errorf("%s/%s is not in the history", args[0], args[1])
			}
			if err := commit(h); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s/%s\n", args[0], args[1])
			return nil
		},
	}
}

func newClearCommand(a *app) *cobra.Command {
	var unused bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry, or the unused ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openHistory()
			if err != nil {
				return err
			}
			before := h.Stats().Entries
			var ok bool
			if unused {
				ok = h.ClearUnusedHistory()
			} else {
				ok = h.ClearAllHistory()
			}
			if !ok {
				return errors.New("history could not be cleared")
			}
			if err := commit(h); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", before-h.Stats().Entries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unused, "unused", false, "only remove entries never picked from a suggestion")
	return cmd
}

func newPruneCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop expired entries and those beyond cache_store_size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openHistory()
			if err != nil {
				return err
			}
			before := h.Stats().Pruned
			if err := h.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", h.Stats().Pruned-before)
			return nil
		},
	}
}

func newBuildDictCommand(a *app) *cobra.Command {
	var out string
	var chunk int
	cmd := &cobra.Command{
		Use:   "build-dict <source.tsv>",
		Short: "Build dictionary chunks from a TSV source",
		Long: `Build dictionary chunks from a TSV source. Each line holds
reading, left id, right id, cost and value separated by tabs, optionally
followed by flags (S spelling correction, U user dictionary, X suffix).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := dictionary.DetectFileFormat(args[0])
			if err != nil {
				return err
			}
			if format != dictionary.FormatSource {
				info, _ := dictionary.GetFormatInfo(format)
				return fmt.Errorf("%s is a %s, not a dictionary source", args[0], info.Description)
			}
			if out == "" {
				out = a.dataDir
			}
			if out == "" {
				return errors.New("--out or --data is required")
			}
			if chunk <= 0 {
				chunk = a.cfg.Dict.ChunkSize
			}
			if err := utils.EnsureDir(out); err != nil {
				return err
			}
			n, err := dictionary.BuildFromSource(args[0], out, chunk)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d chunk(s) to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory")
	cmd.Flags().IntVar(&chunk, "chunk", 0, "tokens per chunk, dict.chunk_size when 0")
	return cmd
}
