package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Player plays a clip to completion. Play blocks until playback ends or ctx
// is cancelled.
type Player interface {
	Play(ctx context.Context, c Clip) error
}

// CommandPlayer pipes raw PCM into an external player process, ffplay by
// default.
type CommandPlayer struct {
	command string
}

// NewCommandPlayer returns a player that runs command (default "ffplay").
func NewCommandPlayer(command string) *CommandPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &CommandPlayer{command: command}
}

func channelLayout(channels int) string {
	if channels == 2 {
		return "stereo"
	}
	return "mono"
}

// Play writes the clip to the player's stdin and waits for it to exit.
func (p *CommandPlayer) Play(ctx context.Context, c Clip) error {
	if c.Empty() {
		return nil
	}
	args := []string{
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(c.Format.SampleRate),
		"-ch_layout", channelLayout(c.Format.Channels),
		"-i", "-",
	}
	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Stdin = bytes.NewReader(c.Data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio: %s: %w: %s", filepath.Base(p.command), err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// WAVSink "plays" clips by writing each one to a numbered WAV file in a
// directory. It suits headless hosts and tests.
type WAVSink struct {
	dir string

	mu   sync.Mutex
	next int
}

// NewWAVSink returns a sink writing into dir, creating it if needed.
func NewWAVSink(dir string) (*WAVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audio: create wav sink dir: %w", err)
	}
	return &WAVSink{dir: dir}, nil
}

// Play writes the clip and returns immediately.
func (s *WAVSink) Play(ctx context.Context, c Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.next++
	name := fmt.Sprintf("reply-%s-%03d.wav", time.Now().Format("20060102T150405"), s.next)
	s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, EncodeWAV(c), 0o644); err != nil {
		return fmt.Errorf("audio: write %s: %w", path, err)
	}
	return nil
}

// Compile-time interface assertions.
var (
	_ Player = (*CommandPlayer)(nil)
	_ Player = (*WAVSink)(nil)
	_ Source = (*FFmpegSource)(nil)
)
