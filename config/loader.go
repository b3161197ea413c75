package config

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Feeder populates a configuration struct from one source.
type Feeder interface {
	Feed(structure any) error
}

// DescribedFeeder is a Feeder that can name its source for reporting.
type DescribedFeeder interface {
	Feeder
	Describe() (kind, location string)
}

// Source describes a configuration source and the outcome of its last load.
type Source struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`     // e.g. "env", "yaml", "toml"
	Location   string     `json:"location"` // file path or env prefix
	Priority   int        `json:"priority"` // later sources override earlier ones
	Loaded     bool       `json:"loaded"`
	LastLoaded *time.Time `json:"last_loaded,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Loader layers feeders over Default(), in order, and validates the result.
type Loader struct {
	mu      sync.Mutex
	feeders []Feeder
	sources []Source
}

// NewLoader creates a loader over feeders; later feeders win.
func NewLoader(feeders ...Feeder) *Loader {
	return &Loader{feeders: feeders}
}

// AddFeeder appends a feeder with the highest priority so far.
func (l *Loader) AddFeeder(feeder Feeder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeders = append(l.feeders, feeder)
}

// Load fills cfg from defaults and every feeder, then validates it. cfg is
// left untouched on failure.
func (l *Loader) Load(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	loaded := Default()
	sources := make([]Source, 0, len(l.feeders))
	for i, feeder := range l.feeders {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("config load cancelled: %w", err)
		}

		source := describe(feeder, i)
		err := feeder.Feed(&loaded)
		now := time.Now()
		source.LastLoaded = &now
		if err != nil {
			source.Error = err.Error()
			sources = append(sources, source)
			l.sources = sources
			return fmt.Errorf("%w: %s %s: %w", ErrFeedFailed, source.Type, source.Location, err)
		}
		source.Loaded = true
		sources = append(sources, source)
	}
	l.sources = sources

	if err := loaded.Validate(); err != nil {
		return err
	}
	*cfg = loaded
	return nil
}

// Reload is Load for a running system; it exists so watchers read clearly.
func (l *Loader) Reload(ctx context.Context, cfg *Config) error {
	return l.Load(ctx, cfg)
}

// Sources returns the sources seen by the last load.
func (l *Loader) Sources() []Source {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.sources)
}

func describe(feeder Feeder, priority int) Source {
	source := Source{
		Name:     fmt.Sprintf("%T", feeder),
		Type:     "custom",
		Priority: priority,
	}
	if d, ok := feeder.(DescribedFeeder); ok {
		source.Type, source.Location = d.Describe()
		source.Name = source.Type
		if source.Location != "" {
			source.Name += ":" + source.Location
		}
	}
	return source
}
