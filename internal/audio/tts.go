package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
)

// ChainSynthesizer tries a sequence of external command-line TTS backends
// in order, falling back to the next one on failure. When every backend
// fails it returns an error; silence substitution is then done by the
// Player, not here.
//
// Grounded on doismellburning-samoyed/src/ptt.go's pattern of shelling out
// to an external control program and treating any non-zero exit or launch
// failure as a soft failure rather than a panic.
type ChainSynthesizer struct {
	// Commands are tried in order; each must accept the text to speak as
	// its final argument and write a WAV file to the path given via
	// OutputFlag (or, if OutputFlag is empty, to stdout).
	Commands []TTSCommand
	// WorkDir is where temporary synthesized clips are written.
	WorkDir string
	log      *log.Logger
	mu       sync.Mutex
	sequence int
}

// TTSCommand describes one candidate external synthesizer.
type TTSCommand struct {
	// Name identifies the backend in logs, e.g. "espeak-ng" or "say".
	Name string
	// Path is the executable to run.
	Path string
	// Args are passed before the output path and text, e.g. ["-v", "en"].
	Args []string
	// OutputFlag, if non-empty, is the flag used to name the output file
	// (e.g. "-w" for espeak-ng). If empty, the command is assumed to write
	// a WAV to stdout and is run through a pty (spec §9: TTS subprocess
	// launched via a pty so it behaves as if run interactively).
	OutputFlag string
}

// NewChainSynthesizer builds a synthesizer trying commands in order,
// writing temporary clips under workDir.
func NewChainSynthesizer(commands []TTSCommand, workDir string, logger *log.Logger) *ChainSynthesizer {
	return &ChainSynthesizer{
		Commands: commands,
		WorkDir:  workDir,
		log:      logger.With("component", "audio.tts"),
	}
}

// Synthesize tries each configured backend in turn. The zero Clip (with
// only Silence set to 0) is never returned on success; callers substitute
// a heuristic silence themselves when Synthesize returns an error.
func (c *ChainSynthesizer) Synthesize(ctx context.Context, text string) (Clip, error) {
	var lastErr error
	for _, cmd := range c.Commands {
		clip, err := c.tryOne(ctx, cmd, text)
		if err == nil {
			return clip, nil
		}
		c.log.Warn("tts backend failed, trying next", "backend", cmd.Name, "err", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("audio: no tts backends configured")
	}
	return Clip{}, lastErr
}

func (c *ChainSynthesizer) tryOne(ctx context.Context, cmd TTSCommand, text string) (Clip, error) {
	out := c.nextOutputPath()

	args := append([]string{}, cmd.Args...)
	var useStdout bool
	if cmd.OutputFlag != "" {
		args = append(args, cmd.OutputFlag, out, text)
	} else {
		args = append(args, text)
		useStdout = true
	}

	execCmd := exec.CommandContext(ctx, cmd.Path, args...)

	if !useStdout {
		if err := execCmd.Run(); err != nil {
			return Clip{}, fmt.Errorf("%s: %w", cmd.Name, err)
		}
		if _, err := os.Stat(out); err != nil {
			return Clip{}, fmt.Errorf("%s: no output produced: %w", cmd.Name, err)
		}
		return Clip{Path: out}, nil
	}

	// Commands that stream to stdout are run attached to a pty (spec §9)
	// so they flush incrementally rather than fully-buffering, then their
	// output is captured to out.
	tty, err := pty.Start(execCmd)
	if err != nil {
		return Clip{}, fmt.Errorf("%s: pty start: %w", cmd.Name, err)
	}
	defer tty.Close()

	f, err := os.Create(out)
	if err != nil {
		return Clip{}, fmt.Errorf("%s: create output: %w", cmd.Name, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := io.Copy(w, tty); err != nil && err != io.EOF {
		c.log.Debug("pty read ended", "backend", cmd.Name, "err", err)
	}
	if err := w.Flush(); err != nil {
		return Clip{}, fmt.Errorf("%s: write output: %w", cmd.Name, err)
	}
	if err := execCmd.Wait(); err != nil {
		return Clip{}, fmt.Errorf("%s: %w", cmd.Name, err)
	}

	return Clip{Path: out}, nil
}

func (c *ChainSynthesizer) nextOutputPath() string {
	c.mu.Lock()
	c.sequence++
	n := c.sequence
	c.mu.Unlock()
	return filepath.Join(c.WorkDir, fmt.Sprintf("speech-%d.wav", n))
}
