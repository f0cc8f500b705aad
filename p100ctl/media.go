package main

import (
	"context"
	"fmt"
	"time"

	"github.com/siegeld/steinway-lyngdorf/mediaapi"
)

// newMediaClient is replaced in tests to point at an httptest server.
var newMediaClient = func(cfg *Config) *mediaapi.Client {
	return mediaapi.NewClient(cfg.mediaHost(), cfg.Media.Port)
}

// runMedia shows what is playing or sends a transport control over the
// HTTP side-channel.
func (a *app) runMedia(ctx context.Context, args []string) error {
	if a.cfg.mediaHost() == "" {
		return usageError("no media host: use --host or set media.host in the config file")
	}
	client := newMediaClient(a.cfg)
	client.SetLogger(a.logger)

	action := "info"
	if len(args) > 0 {
		action = args[0]
	}

	var err error
	switch action {
	case "info":
		return a.printMediaInfo(ctx, client)
	case "playpause":
		err = client.PlayPause(ctx)
	case "play":
		err = client.Play(ctx)
	case "pause":
		err = client.Pause(ctx)
	case "next":
		err = client.NextTrack(ctx)
	case "prev", "previous":
		err = client.PreviousTrack(ctx)
	default:
		return usageError("media expects info, playpause, play, pause, next or prev, got %q", action)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "OK")
	return nil
}

func (a *app) printMediaInfo(ctx context.Context, client *mediaapi.Client) error {
	info, err := client.MediaInfo(ctx)
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Fprintln(a.out, "Nothing playing")
		return nil
	}

	fmt.Fprintf(a.out, "State:   %s\n", info.State)
	if info.Title != "" {
		fmt.Fprintf(a.out, "Title:   %s\n", info.Title)
	}
	if info.Artist != "" {
		fmt.Fprintf(a.out, "Artist:  %s\n", info.Artist)
	}
	if info.Album != "" {
		fmt.Fprintf(a.out, "Album:   %s\n", info.Album)
	}
	if info.Service != "" {
		fmt.Fprintf(a.out, "Service: %s\n", info.Service)
	}
	fmt.Fprintf(a.out, "Format:  %s\n", info.AudioFormat())
	if info.DurationMS > 0 {
		pos := "?"
		if info.HasPosition {
			pos = formatDuration(info.PositionMS)
		}
		fmt.Fprintf(a.out, "Time:    %s / %s\n", pos, formatDuration(info.DurationMS))
	}
	return nil
}

// formatDuration renders milliseconds as m:ss.
func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
