/*
Histctl inspects and maintains the encrypted kanaserve user history offline.

Usage:

	histctl [flags] <command>

Commands:

	dump        list the stored entries, most recently used first
	stats       show the history counters and the limits in effect
	learn       segment a sentence and learn it as if it were committed
	predict     run a prediction through the full engine
	forget      remove one reading/value pair
	clear       remove every entry, or only the unused ones with --unused
	prune       drop expired entries and those beyond cache_store_size
	build-dict  build dictionary chunks from a TSV source

Flags:

	--config   path to config.toml
	--history  path to the history file, overriding history.storage_file
	--data     dictionary data directory, overriding dict.data_dir

The history passphrase is read from the environment variable named by
history.passphrase_env. Histctl must not run while the server holds the same
history file, the server overwrites it on its next sync.
*/
package main

import (
	"fmt"
	"os"

	"github.com/bastiangx/kanaserve/internal/engine"
	"github.com/bastiangx/kanaserve/internal/utils"
	"github.com/bastiangx/kanaserve/pkg/config"
	"github.com/bastiangx/kanaserve/pkg/history"
	"github.com/bastiangx/kanaserve/pkg/storage"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

type app struct {
	configPath  string
	historyPath string
	dataDir     string
	verbose     bool

	cfg *config.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "histctl",
		Short:         "Inspect and maintain the kanaserve user history",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.SetOutput(cmd.ErrOrStderr())
			if a.verbose {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.WarnLevel)
			}
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config.toml")
	root.PersistentFlags().StringVar(&a.historyPath, "history", "", "path to the history file")
	root.PersistentFlags().StringVar(&a.dataDir, "data", "", "dictionary data directory")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newDumpCommand(a),
		newStatsCommand(a),
		newLearnCommand(a),
		newPredictCommand(a),
		newForgetCommand(a),
		newClearCommand(a),
		newPruneCommand(a),
		newBuildDictCommand(a),
	)
	return root
}

func (a *app) loadConfig() error {
	if a.configPath == "" {
		cfg, _, err := config.LoadConfigWithPriority("")
		if err != nil {
			return err
		}
		a.cfg = cfg
		return nil
	}
	if !utils.FileExists(a.configPath) {
		return fmt.Errorf("config %s not found", a.configPath)
	}
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// paths resolves the engine locations, applying the flag overrides.
func (a *app) paths() (engine.Paths, error) {
	pr, err := utils.NewPathResolver()
	if err != nil {
		return engine.Paths{}, fmt.Errorf("resolve paths: %w", err)
	}
	p := engine.ResolvePaths(a.cfg, pr)
	if a.historyPath != "" {
		p.HistoryFile = a.historyPath
	}
	if a.dataDir != "" {
		p.DataDir = a.dataDir
	}
	return p, nil
}

func (a *app) passphrase() string {
	if a.cfg.History.PassphraseEnv == "" {
		return ""
	}
	return os.Getenv(a.cfg.History.PassphraseEnv)
}

// openHistory restores the history without a dictionary. Any load failure
// is returned so a wrong passphrase never leads to an overwrite.
func (a *app) openHistory() (*history.Predictor, error) {
	p, err := a.paths()
	if err != nil {
		return nil, err
	}
	h := history.New(
		history.WithStorage(storage.NewEncryptedFile(p.HistoryFile, a.passphrase())),
		history.WithCapacity(a.cfg.History.StoreCapacity),
		history.WithLimits(a.cfg.HistoryLimits()),
		history.WithLogger(log.Default()),
	)
	stats, err := h.Load()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.HistoryFile, err)
	}
	log.Debugf("Loaded %d entries from %s (%d discarded)", stats.Loaded, p.HistoryFile, stats.Discarded)
	return h, nil
}

// commit waits for the background syncs a mutation scheduled and writes the
// history once more so the command only returns after it is on disk.
func commit(h *history.Predictor) error {
	h.Wait()
	return h.Save()
}
