package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrDeviceDenied is returned when the capture device refuses access to the
// microphone.
var ErrDeviceDenied = errors.New("audio: capture device access denied")

// startupGrace is how long [FFmpegSource.Open] waits for an early ffmpeg exit
// before handing the stream to the caller.
const startupGrace = 250 * time.Millisecond

// stopGrace is how long [Stream.Stop] waits after SIGINT before killing.
const stopGrace = 1200 * time.Millisecond

// Source opens live microphone streams.
type Source interface {
	Open(ctx context.Context, f Format) (Stream, error)
}

// Stream is a live capture. Read yields raw s16le PCM in the format it was
// opened with. Stop is idempotent.
type Stream interface {
	io.Reader
	Stop() error
}

// FFmpegSource captures microphone audio by running ffmpeg and reading s16le
// PCM from its stdout.
type FFmpegSource struct {
	command     string
	inputFormat string
	inputDevice string
}

// NewFFmpegSource returns a source running command (default "ffmpeg") against
// inputFormat/inputDevice (default "pulse"/"default").
func NewFFmpegSource(command, inputFormat, inputDevice string) *FFmpegSource {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	if inputDevice == "" {
		inputDevice = "default"
	}
	return &FFmpegSource{command: command, inputFormat: inputFormat, inputDevice: inputDevice}
}

func (s *FFmpegSource) args(f Format) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", s.inputFormat,
		"-i", s.inputDevice,
		"-ac", strconv.Itoa(f.Channels),
		"-ar", strconv.Itoa(f.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Open starts ffmpeg. If the process exits within the startup grace period
// the stream is considered failed; access failures map to [ErrDeviceDenied].
func (s *FFmpegSource) Open(ctx context.Context, f Format) (Stream, error) {
	if f.SampleRate <= 0 {
		f.SampleRate = CaptureFormat.SampleRate
	}
	if f.Channels <= 0 {
		f.Channels = CaptureFormat.Channels
	}

	cmd := exec.CommandContext(ctx, s.command, s.args(f)...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		msg := stderr.trimmed()
		if deniedMessage(msg) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceDenied, msg)
		}
		if err != nil {
			return nil, fmt.Errorf("audio: ffmpeg exited before capture started: %w: %s", err, msg)
		}
		return nil, errors.New("audio: ffmpeg exited before capture started")
	case <-time.After(startupGrace):
	}

	return &ffmpegStream{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegStream struct {
	stdout  io.ReadCloser
	stderr  *lockedBuffer
	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = exitStatusIgnored(err)
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = exitStatusIgnored(err)
			}
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil {
			if msg := s.stderr.trimmed(); msg != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, msg)
			}
		}
	})
	return s.stopErr
}

// exitStatusIgnored drops *exec.ExitError: ffmpeg exits non-zero on SIGINT.
func exitStatusIgnored(err error) error {
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func deniedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") || strings.Contains(lower, "access denied")
}

// lockedBuffer is written by the exec copy goroutine and read by Open/Stop.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) trimmed() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
