package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/orbitlearn/orbitvoice/internal/kv"
	"github.com/orbitlearn/orbitvoice/pkg/provider/stt"
	"github.com/orbitlearn/orbitvoice/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// StorageFactory opens a key-value store. The returned release function
// closes any connection the store holds and may be nil.
type StorageFactory func(ctx context.Context, cfg StorageConfig) (store kv.Store, release func(), err error)

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tts     map[string]func(ProviderEntry) (tts.Provider, error)
	stt     map[string]func(ProviderEntry) (stt.Provider, error)
	storage map[StorageBackend]StorageFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		tts:     make(map[string]func(ProviderEntry) (tts.Provider, error)),
		stt:     make(map[string]func(ProviderEntry) (stt.Provider, error)),
		storage: make(map[StorageBackend]StorageFactory),
	}
}

// RegisterTTS registers a TTS provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterSTT registers a recognizer factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterStorage registers a key-value store factory for backend.
func (r *Registry) RegisterStorage(backend StorageBackend, factory StorageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[backend] = factory
}

// CreateTTS instantiates the TTS provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates the recognizer registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateStorage opens the store selected by cfg.Backend.
func (r *Registry) CreateStorage(ctx context.Context, cfg StorageConfig) (kv.Store, func(), error) {
	r.mu.RLock()
	factory, ok := r.storage[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: storage/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	store, release, err := factory(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if release == nil {
		release = func() {}
	}
	return store, release, nil
}

// TTSNames lists the registered TTS provider names in sorted order.
func (r *Registry) TTSNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tts))
	for n := range r.tts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
