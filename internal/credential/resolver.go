package credential

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bimmerbailey/streamchat/internal/redact"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// Resolver looks up named values in the environment and then in a local
// key-value file.
type Resolver struct {
	envFile string
	logger  *slog.Logger

	mu       sync.RWMutex
	values   map[string]string // cached file values, valid while watching
	watching bool
}

// NewResolver creates a Resolver backed by envFile. An empty envFile
// disables the file fallback.
func NewResolver(envFile string, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if envFile != "" {
		abs, err := filepath.Abs(envFile)
		if err != nil {
			return nil, fmt.Errorf("invalid env file path: %w", err)
		}
		envFile = abs
	}

	return &Resolver{envFile: envFile, logger: logger}, nil
}

// EnvFile returns the absolute path of the fallback file.
func (r *Resolver) EnvFile() string {
	return r.envFile
}

// Lookup returns the normalized value for name, or "" when neither the
// environment nor the file defines it.
func (r *Resolver) Lookup(name string) string {
	if v := Normalize(os.Getenv(name)); v != "" {
		return v
	}
	return Normalize(r.fileValue(name))
}

// LookupDefault is Lookup with a fallback for absent values.
func (r *Resolver) LookupDefault(name, def string) string {
	if v := r.Lookup(name); v != "" {
		return v
	}
	return def
}

func (r *Resolver) fileValue(name string) string {
	r.mu.RLock()
	if r.watching {
		v := r.values[name]
		r.mu.RUnlock()
		return v
	}
	r.mu.RUnlock()

	// Without a watcher the file is read on every lookup so edits are seen.
	values, err := r.read()
	if err != nil {
		r.logger.Warn("failed to read env file", "path", r.envFile, "error", err)
		return ""
	}
	return values[name]
}

func (r *Resolver) read() (map[string]string, error) {
	if r.envFile == "" {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(r.envFile)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	return values, err
}

// Reload re-reads the file into the cache.
func (r *Resolver) Reload() error {
	values, err := r.read()
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.values = values
	r.mu.Unlock()
	return nil
}

// Watch keeps the cached file values current until ctx is done. It watches
// the file's directory so the file may be created, replaced or removed
// while the process runs.
func (r *Resolver) Watch(ctx context.Context) error {
	if r.envFile == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to setup watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(r.envFile)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(r.envFile), err)
	}

	if err := r.Reload(); err != nil {
		r.logger.Warn("failed to read env file", "path", r.envFile, "error", err)
	}

	r.mu.Lock()
	r.watching = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.watching = false
		r.mu.Unlock()
	}()

	r.logger.Debug("watching env file", "path", r.envFile)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed unexpectedly")
			}
			r.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			r.logger.Warn("env file watcher error", "error", err)
		}
	}
}

func (r *Resolver) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != r.envFile {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if err := r.Reload(); err != nil {
		r.logger.Warn("failed to reload env file", "path", r.envFile, "error", err)
		return
	}
	r.logger.Info("env file reloaded", "path", r.envFile, "op", event.Op.String())
}

// Diagnostics describes where a credential could come from, with secrets
// masked. It backs the "check" command and the web credential panel.
type Diagnostics struct {
	WorkDir       string `json:"work_dir"`
	EnvFile       string `json:"env_file"`
	EnvFileExists bool   `json:"env_file_exists"`
	EnvFileMasked string `json:"env_file_masked,omitempty"`
	EnvFileError  string `json:"env_file_error,omitempty"`
	ProcessEnvSet bool   `json:"process_env_set"`
	Credential    Info   `json:"credential"`
}

// Diagnose inspects the environment and file for name.
func (r *Resolver) Diagnose(name string) Diagnostics {
	d := Diagnostics{
		EnvFile:       r.envFile,
		ProcessEnvSet: os.Getenv(name) != "",
		Credential:    Describe(r.Lookup(name)),
	}
	if wd, err := os.Getwd(); err == nil {
		d.WorkDir = wd
	}
	if r.envFile == "" {
		return d
	}

	content, err := os.ReadFile(r.envFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return d
	case err != nil:
		d.EnvFileExists = true
		d.EnvFileError = err.Error()
		return d
	}

	d.EnvFileExists = true
	d.EnvFileMasked = maskFile(string(content), name)
	return d
}

// maskFile masks the value assigned to name and redacts anything else that
// looks like a secret.
func maskFile(content, name string) string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if value, ok := strings.CutPrefix(line, name+"="); ok {
			line = name + "=" + redact.Mask(value)
		} else {
			line = redact.Secrets(line)
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
