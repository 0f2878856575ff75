// Package fsfacility implements a broadcast.Facility on a shared directory.
//
// Any process that can write to the directory can post, and any process that
// can read it can observe, so it works between unrelated processes on one host
// without a server.
//
// A post atomically renames a freshly written file into the directory under a
// name derived from the fully-qualified name. Observers watch the directory
// with fsnotify and treat each create event as one notification. File contents
// are never read.
package fsfacility

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dyluth/tocsin/pkg/broadcast"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	// filePrefix marks notification files so unrelated entries are ignored.
	filePrefix = "ev-"

	// digestPrefix marks files for names too long to encode. They are
	// matched against observed names instead of being decoded.
	digestPrefix = "ed-"

	// maxFileNameLen is NAME_MAX on Linux and macOS.
	maxFileNameLen = 255

	// stagingDir holds files before they are renamed into place. It is not
	// watched, so staging never produces events.
	stagingDir = ".staging"
)

// FileName returns the file used for the fully-qualified name.
// Names are base64url encoded so any string maps to a valid file name. Names
// whose encoding would exceed the file name limit use a SHA-256 digest.
func FileName(name string) string {
	if base64.RawURLEncoding.EncodedLen(len(name))+len(filePrefix) <= maxFileNameLen {
		return filePrefix + base64.RawURLEncoding.EncodeToString([]byte(name))
	}
	sum := sha256.Sum256([]byte(name))
	return digestPrefix + hex.EncodeToString(sum[:])
}

// ParseFileName reverses FileName for encoded names. Digest file names
// cannot be reversed and report false.
func ParseFileName(file string) (string, bool) {
	encoded, ok := strings.CutPrefix(file, filePrefix)
	if !ok {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// Facility is a broadcast.Facility backed by a watched directory.
// It is safe for concurrent use.
type Facility struct {
	dir       string
	watcher   *fsnotify.Watcher
	observers broadcast.Observers
	deliver   broadcast.DeliverFunc
	logger    zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Facility.
type Option func(*Facility)

// WithLogger sets the logger used for swallowed filesystem errors.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Facility) {
		f.logger = logger
	}
}

// WithDeliverFunc replaces broadcast.Deliver as the inbound callback.
func WithDeliverFunc(fn broadcast.DeliverFunc) Option {
	return func(f *Facility) {
		if fn != nil {
			f.deliver = fn
		}
	}
}

// New creates dir if needed and starts watching it.
func New(dir string, opts ...Option) (*Facility, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	if err := os.MkdirAll(filepath.Join(dir, stagingDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create notification directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	f := &Facility{
		dir:     dir,
		watcher: watcher,
		deliver: broadcast.Deliver,
		logger:  zerolog.Nop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With().Str("component", "fsfacility").Str("dir", dir).Logger()

	go f.run()
	return f, nil
}

// Dir returns the watched directory.
func (f *Facility) Dir() string {
	return f.dir
}

func (f *Facility) Observe(name string, token broadcast.Token) {
	f.observers.Add(name, token)
}

func (f *Facility) Unobserve(name string, token broadcast.Token) {
	f.observers.Remove(name, token)
}

func (f *Facility) UnobserveAll(token broadcast.Token) {
	f.observers.RemoveToken(token)
}

// Post stages an empty file and renames it over the name's file.
func (f *Facility) Post(name string) {
	staged, err := os.CreateTemp(filepath.Join(f.dir, stagingDir), "post-*")
	if err != nil {
		f.logger.Warn().Err(err).Str("name", name).Msg("failed to stage notification")
		return
	}
	stagedPath := staged.Name()
	if err := staged.Close(); err != nil {
		f.logger.Warn().Err(err).Str("name", name).Msg("failed to stage notification")
		os.Remove(stagedPath)
		return
	}

	if err := os.Rename(stagedPath, filepath.Join(f.dir, FileName(name))); err != nil {
		f.logger.Warn().Err(err).Str("name", name).Msg("failed to post notification")
		os.Remove(stagedPath)
	}
}

// Close stops watching. Implements io.Closer. Safe to call multiple times.
func (f *Facility) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.watcher.Close()
		<-f.done
	})
	return f.closeErr
}

// namesFor returns the observed names a notification file stands for.
func (f *Facility) namesFor(file string) []string {
	if name, ok := ParseFileName(file); ok {
		return []string{name}
	}
	if !strings.HasPrefix(file, digestPrefix) {
		return nil
	}

	var names []string
	for _, name := range f.observers.Names() {
		if FileName(name) == file {
			names = append(names, name)
		}
	}
	return names
}

func (f *Facility) run() {
	defer close(f.done)

	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			for _, name := range f.namesFor(filepath.Base(event.Name)) {
				for _, token := range f.observers.Tokens(name) {
					f.deliver(name, token)
				}
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				f.logger.Warn().Msg("notification queue overflowed, some posts were dropped")
				continue
			}
			f.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}
