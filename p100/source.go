package p100

import (
	"context"
	"fmt"
	"sync"

	"github.com/siegeld/steinway-lyngdorf/p100protocol"
)

// SourceControl lists and selects inputs. The source list is cached after
// the first fetch.
type SourceControl struct {
	dev *Device

	mu    sync.Mutex
	cache []Source
}

// List returns the configured sources, fetching them when refresh is set or
// nothing is cached yet.
func (s *SourceControl) List(ctx context.Context, refresh bool) ([]Source, error) {
	s.mu.Lock()
	cached := s.cache
	s.mu.Unlock()
	if cached != nil && !refresh {
		return cached, nil
	}

	resp, err := s.dev.query(ctx, p100protocol.NewSourceListQueryCommand())
	if err != nil {
		return nil, err
	}
	sources, err := p100protocol.ParseSourceList(resp)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache = sources
	s.mu.Unlock()
	return sources, nil
}

// Current returns the selected source. A reply without a name is resolved
// from the source list, falling back to "Source <n>".
func (s *SourceControl) Current(ctx context.Context) (Source, error) {
	resp, err := s.dev.query(ctx, p100protocol.NewSourceQueryCommand())
	if err != nil {
		return Source{}, err
	}
	src, err := p100protocol.ParseSource(resp)
	if err != nil {
		return Source{}, err
	}
	if src.Name != "" {
		return src, nil
	}

	if list, err := s.List(ctx, false); err == nil {
		for _, entry := range list {
			if entry.Index == src.Index {
				return entry, nil
			}
		}
	} else {
		s.dev.logger.Debug("source list unavailable", "error", err)
	}
	src.Name = fmt.Sprintf("Source %d", src.Index)
	return src, nil
}

// Select switches to the source with the given index.
func (s *SourceControl) Select(ctx context.Context, index int) error {
	cmd, err := p100protocol.NewSourceSelectCommand(index)
	if err != nil {
		return err
	}
	return s.dev.send(ctx, cmd)
}

// SelectByName switches to the source whose name matches name exactly
// (ignoring case) or, failing that, is the only one containing it.
func (s *SourceControl) SelectByName(ctx context.Context, name string) (Source, error) {
	list, err := s.List(ctx, false)
	if err != nil {
		return Source{}, err
	}
	src, err := matchByName("source", list, name, func(s Source) string { return s.Name })
	if err != nil {
		return Source{}, err
	}
	return src, s.Select(ctx, src.Index)
}

// Next selects the following source, wrapping to the first.
func (s *SourceControl) Next(ctx context.Context) (Source, error) {
	return s.step(ctx, 1)
}

// Previous selects the preceding source, wrapping to the last.
func (s *SourceControl) Previous(ctx context.Context) (Source, error) {
	return s.step(ctx, -1)
}

func (s *SourceControl) step(ctx context.Context, delta int) (Source, error) {
	list, err := s.List(ctx, false)
	if err != nil {
		return Source{}, err
	}
	if len(list) == 0 {
		return Source{}, fmt.Errorf("sources: %w", ErrEmptyList)
	}
	current, err := s.Current(ctx)
	if err != nil {
		return Source{}, err
	}

	pos := sourcePosition(list, current.Index)
	if pos < 0 {
		// The selected source is not in the cached list; it may be stale.
		if list, err = s.List(ctx, true); err != nil {
			return Source{}, err
		}
		if pos = sourcePosition(list, current.Index); pos < 0 {
			return Source{}, fmt.Errorf("source %d: %w", current.Index, ErrNoMatch)
		}
	}
	next := list[(pos+delta+len(list))%len(list)]
	return next, s.Select(ctx, next.Index)
}

func sourcePosition(list []Source, index int) int {
	for i, entry := range list {
		if entry.Index == index {
			return i
		}
	}
	return -1
}
