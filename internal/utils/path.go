package utils

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
)

const appName = "kanaserve"

// PathResolver finds the dictionary data, config and history locations
// relative to the running binary and the platform conventions.
type PathResolver struct {
	executablePath string
	executableDir  string
	homeDir        string
	configDir      string
	stateDir       string
}

func NewPathResolver() (*PathResolver, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warnf("Could not determine home directory: %v", err)
		homeDir = os.TempDir()
	}
	pr := &PathResolver{
		executablePath: execPath,
		executableDir:  filepath.Dir(execPath),
		homeDir:        homeDir,
		configDir:      platformDir(homeDir, "XDG_CONFIG_HOME", ".config"),
		stateDir:       platformDir(homeDir, "XDG_STATE_HOME", filepath.Join(".local", "state")),
	}
	log.Debugf("PathResolver initialized: exec=%s, configDir=%s, stateDir=%s",
		pr.executablePath, pr.configDir, pr.stateDir)
	return pr, nil
}

// platformDir returns the per-user directory for kanaserve. Linux honours
// the given XDG variable and falls back to ~/<fallback>.
func platformDir(homeDir, xdgVar, fallback string) string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	case "linux":
		if dir := os.Getenv(xdgVar); dir != "" {
			return filepath.Join(dir, appName)
		}
	}
	return filepath.Join(homeDir, fallback, appName)
}

// GetDataDir resolves the dictionary directory. The user path is tried as
// given, then relative to the executable and the working directory, then the
// usual data/ locations. The first directory holding dict_*.bin chunks wins.
func (pr *PathResolver) GetDataDir(userPath string) string {
	candidates := pr.dataDirCandidates(userPath)
	for _, path := range candidates {
		if IsValidDataDir(path) {
			log.Debugf("Found dictionary data directory: %s", path)
			return path
		}
		log.Debugf("Dictionary directory candidate not valid: %s", path)
	}
	return candidates[0]
}

func (pr *PathResolver) dataDirCandidates(userPath string) []string {
	var candidates []string
	if filepath.IsAbs(userPath) {
		candidates = append(candidates, userPath)
	} else {
		candidates = append(candidates, filepath.Join(pr.executableDir, userPath))
		if cwd, err := os.Getwd(); err == nil {
			candidates = append(candidates, filepath.Join(cwd, userPath))
		}
	}
	return append(candidates,
		filepath.Join(pr.executableDir, "data"),
		filepath.Join(filepath.Dir(pr.executableDir), "data"),
		filepath.Join(pr.configDir, "data"),
	)
}

// IsValidDataDir reports whether path holds at least one dictionary chunk.
func IsValidDataDir(path string) bool {
	if stat, err := os.Stat(path); err != nil || !stat.IsDir() {
		return false
	}
	matches, err := filepath.Glob(filepath.Join(path, "dict_*.bin"))
	return err == nil && len(matches) > 0
}

// GetStatePath returns where a per-user state file such as the encrypted
// history lives, creating the directory when needed. Relative names resolve
// under the state directory; absolute names are returned as is.
func (pr *PathResolver) GetStatePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if CheckDirStatus(pr.stateDir).Writable {
		return filepath.Join(pr.stateDir, name)
	}
	fallback := filepath.Join(os.TempDir(), appName)
	log.Warnf("State directory %s is not writable, using %s", pr.stateDir, fallback)
	_ = EnsureDir(fallback)
	return filepath.Join(fallback, name)
}

// ResolveRelativePath resolves a path relative to the executable directory.
func (pr *PathResolver) ResolveRelativePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(pr.executableDir, path)
}

func (pr *PathResolver) ConfigDir() string {
	return pr.configDir
}

// RuntimeInfo lists the resolved locations for diagnostics.
func (pr *PathResolver) RuntimeInfo() map[string]string {
	cwd, _ := os.Getwd()
	info := map[string]string{
		"executable_path": pr.executablePath,
		"current_dir":     cwd,
		"config_dir":      pr.configDir,
		"state_dir":       pr.stateDir,
		"os":              runtime.GOOS,
		"arch":            runtime.GOARCH,
	}
	for _, env := range []string{"XDG_CONFIG_HOME", "XDG_STATE_HOME", "APPDATA"} {
		if value := os.Getenv(env); value != "" {
			info["env_"+strings.ToLower(env)] = value
		}
	}
	return info
}
