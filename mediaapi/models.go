package mediaapi

import (
	"fmt"
	"strings"
)

// PlaybackState is the player's transport state.
type PlaybackState string

const (
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
	StateStopped PlaybackState = "stopped"
	StateUnknown PlaybackState = "unknown"
)

func parsePlaybackState(s string) PlaybackState {
	switch PlaybackState(s) {
	case StatePlaying, StatePaused, StateStopped:
		return PlaybackState(s)
	default:
		return StateUnknown
	}
}

// MediaInfo describes what the built-in player is playing. Zero values mean
// the device did not report the field.
type MediaInfo struct {
	Title  string
	Artist string
	Album  string

	State       PlaybackState
	DurationMS  int64
	PositionMS  int64
	HasPosition bool

	SampleRate int // Hz
	BitDepth   int
	Channels   int
	BitRate    int

	Service string // e.g. "roon", "spotify", "tidal"
	IconURL string
}

// IsPlaying reports whether the player is playing.
func (m MediaInfo) IsPlaying() bool {
	return m.State == StatePlaying
}

// ProgressPercent returns the playback position as a percentage of the
// duration, and false when either is unknown.
func (m MediaInfo) ProgressPercent() (float64, bool) {
	if m.DurationMS <= 0 || !m.HasPosition {
		return 0, false
	}
	return float64(m.PositionMS) / float64(m.DurationMS) * 100, true
}

// AudioFormat renders the stream format, e.g. "44.1kHz 16bit 2ch".
func (m MediaInfo) AudioFormat() string {
	var parts []string
	if m.SampleRate > 0 {
		parts = append(parts, fmt.Sprintf("%.1fkHz", float64(m.SampleRate)/1000))
	}
	if m.BitDepth > 0 {
		parts = append(parts, fmt.Sprintf("%dbit", m.BitDepth))
	}
	if m.Channels > 0 {
		parts = append(parts, fmt.Sprintf("%dch", m.Channels))
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, " ")
}

// playerData is the second element of the player:player/data reply.
type playerData struct {
	State  string `json:"state"`
	Status struct {
		Duration float64 `json:"duration"`
	} `json:"status"`
	TrackRoles struct {
		Title     string `json:"title"`
		Icon      string `json:"icon"`
		MediaData struct {
			MetaData struct {
				Artist    string `json:"artist"`
				Album     string `json:"album"`
				ServiceID string `json:"serviceID"`
			} `json:"metaData"`
			Resources []struct {
				SampleFrequency float64 `json:"sampleFrequency"`
				BitsPerSample   float64 `json:"bitsPerSample"`
				NrAudioChannels float64 `json:"nrAudioChannels"`
				BitRate         float64 `json:"bitRate"`
			} `json:"resources"`
		} `json:"mediaData"`
	} `json:"trackRoles"`
}

func (p playerData) mediaInfo() *MediaInfo {
	tr := p.TrackRoles
	meta := tr.MediaData.MetaData
	info := &MediaInfo{
		Title:      tr.Title,
		Artist:     meta.Artist,
		Album:      meta.Album,
		State:      parsePlaybackState(p.State),
		DurationMS: int64(p.Status.Duration),
		Service:    meta.ServiceID,
		IconURL:    tr.Icon,
	}
	if len(tr.MediaData.Resources) > 0 {
		r := tr.MediaData.Resources[0]
		info.SampleRate = int(r.SampleFrequency)
		info.BitDepth = int(r.BitsPerSample)
		info.Channels = int(r.NrAudioChannels)
		info.BitRate = int(r.BitRate)
	}
	return info
}

// playTime is one element of the player:player/data/playTime reply.
type playTime struct {
	I64 *int64 `json:"i64_"`
}
