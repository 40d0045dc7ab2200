package watermark

import (
	"fmt"
	"sync"
	"time"
)

// Epoch is the watermark of a section that has never been seen.
var Epoch = time.Unix(0, 0).UTC()

// Store reads and writes per-section watermarks through a KV. Writes are
// monotonic: a watermark never moves backwards.
type Store struct {
	kv        KV
	namespace string

	mu    sync.Mutex
	cache map[string]time.Time
}

// New returns a Store keeping the watermarks of one viewer under namespace.
func New(kv KV, namespace string) *Store {
	return &Store{
		kv:        kv,
		namespace: namespace,
		cache:     make(map[string]time.Time),
	}
}

func (s *Store) key(section string) string {
	return "watermark/" + s.namespace + "/" + section
}

// Get returns the section's watermark. An absent watermark defaults to the
// epoch and is persisted on first read.
func (s *Store) Get(section string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(section)
}

func (s *Store) getLocked(section string) (time.Time, error) {
	if t, ok := s.cache[section]; ok {
		return t, nil
	}

	raw, ok, err := s.kv.GetItem(s.key(section))
	if err != nil {
		return Epoch, fmt.Errorf("reading watermark %s: %w", section, err)
	}

	if !ok {
		if err := s.kv.SetItem(s.key(section), format(Epoch)); err != nil {
			return Epoch, fmt.Errorf("initializing watermark %s: %w", section, err)
		}
		s.cache[section] = Epoch
		return Epoch, nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// A corrupt value is treated as never seen.
		t = Epoch
	}
	s.cache[section] = t
	return t, nil
}

// Set advances the section's watermark to t. An earlier t is a no-op.
func (s *Store) Set(section string, t time.Time) error {
	return s.SetAll([]string{section}, t)
}

// SetAll advances every section's watermark to t in one write. Sections
// already past t are left alone. Either every advance is persisted or none.
func (s *Store) SetAll(sections []string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = t.UTC()
	items := make(map[string]string, len(sections))
	advanced := make(map[string]time.Time, len(sections))
	for _, section := range sections {
		current, err := s.getLocked(section)
		if err != nil {
			return err
		}
		if !t.After(current) {
			continue
		}
		items[s.key(section)] = format(t)
		advanced[section] = t
	}
	if len(items) == 0 {
		return nil
	}

	if err := s.write(items); err != nil {
		return fmt.Errorf("writing watermarks: %w", err)
	}
	for section, ts := range advanced {
		s.cache[section] = ts
	}
	return nil
}

func (s *Store) write(items map[string]string) error {
	if b, ok := s.kv.(BatchKV); ok {
		return b.SetItems(items)
	}
	for k, v := range items {
		if err := s.kv.SetItem(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns the watermarks of the given sections.
func (s *Store) Snapshot(sections []string) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(sections))
	for _, section := range sections {
		t, err := s.getLocked(section)
		if err != nil {
			return nil, err
		}
		out[section] = t
	}
	return out, nil
}

func format(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
