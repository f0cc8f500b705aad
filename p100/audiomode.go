package p100

import (
	"context"
	"sync"

	"github.com/siegeld/steinway-lyngdorf/p100protocol"
)

// AudioModeControl lists and selects audio processing modes and reports the
// incoming audio format.
type AudioModeControl struct {
	dev *Device

	mu    sync.Mutex
	cache []AudioMode
}

// List returns the available audio modes, cached after the first fetch.
func (a *AudioModeControl) List(ctx context.Context, refresh bool) ([]AudioMode, error) {
	a.mu.Lock()
	cached := a.cache
	a.mu.Unlock()
	if cached != nil && !refresh {
		return cached, nil
	}

	resp, err := a.dev.query(ctx, p100protocol.NewAudioModeListQueryCommand())
	if err != nil {
		return nil, err
	}
	modes, err := p100protocol.ParseAudioModeList(resp)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache = modes
	a.mu.Unlock()
	return modes, nil
}

// Current returns the active audio mode.
func (a *AudioModeControl) Current(ctx context.Context) (AudioMode, error) {
	resp, err := a.dev.query(ctx, p100protocol.NewAudioModeQueryCommand())
	if err != nil {
		return AudioMode{}, err
	}
	mode, err := p100protocol.ParseAudioMode(resp)
	if err != nil || mode.Name != "" {
		return mode, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, entry := range a.cache {
		if entry.Index == mode.Index {
			return entry, nil
		}
	}
	return mode, nil
}

// Select switches to the audio mode with the given index.
func (a *AudioModeControl) Select(ctx context.Context, index int) error {
	cmd, err := p100protocol.NewAudioModeSelectCommand(index)
	if err != nil {
		return err
	}
	return a.dev.send(ctx, cmd)
}

// SelectByName switches to the audio mode matching name.
func (a *AudioModeControl) SelectByName(ctx context.Context, name string) (AudioMode, error) {
	list, err := a.List(ctx, false)
	if err != nil {
		return AudioMode{}, err
	}
	mode, err := matchByName("audio mode", list, name, func(m AudioMode) string { return m.Name })
	if err != nil {
		return AudioMode{}, err
	}
	return mode, a.Select(ctx, mode.Index)
}

// Next asks the device to step to the next audio mode.
func (a *AudioModeControl) Next(ctx context.Context) error {
	return a.dev.send(ctx, p100protocol.NewAudioModeNextCommand())
}

// Previous asks the device to step to the previous audio mode.
func (a *AudioModeControl) Previous(ctx context.Context) error {
	return a.dev.send(ctx, p100protocol.NewAudioModePreviousCommand())
}

// AudioType describes the incoming audio format, e.g. "Dolby Digital 5.1".
func (a *AudioModeControl) AudioType(ctx context.Context) (string, error) {
	resp, err := a.dev.query(ctx, p100protocol.NewAudioTypeQueryCommand())
	if err != nil {
		return "", err
	}
	return p100protocol.ParseAudioType(resp)
}
