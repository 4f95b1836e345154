package mlagents

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Process is a launched Unity player.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err is the exit error; only meaningful once Done is closed.
func (p *Process) Err() error {
	return p.err
}

// Stop waits up to timeout for the player to exit on its own, then kills it.
func (p *Process) Stop(timeout time.Duration) error {
	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill environment process: %w", err)
	}
	<-p.done
	return nil
}

func launchExecutable(path string, args []string, logger zerolog.Logger) (*Process, error) {
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch environment %s: %w", path, err)
	}
	logger.Info().Str("path", path).Strs("args", args).Int("pid", cmd.Process.Pid).Msg("environment launched")

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

var playerExtensions = []string{".app", ".x86_64", ".x86", ".exe"}

// resolveExecutable finds the player binary for name, with or without its
// platform extension.
func resolveExecutable(name string) (string, error) {
	base := name
	for _, ext := range playerExtensions {
		base = strings.TrimSuffix(base, ext)
	}

	candidates := []string{name}
	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates, filepath.Join(base+".app", "Contents", "MacOS", filepath.Base(base)))
	case "windows":
		candidates = append(candidates, base+".exe")
	default:
		candidates = append(candidates, base+".x86_64", base+".x86")
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrEnvironmentNotFound, name)
}

func playerArgs(port int, opts Options) []string {
	args := []string{"--mlagents-port", strconv.Itoa(port)}
	if opts.NoGraphics {
		args = append(args, "-nographics", "-batchmode")
	}
	if opts.LogFolder != "" {
		args = append(args, "-logFile", filepath.Join(opts.LogFolder, fmt.Sprintf("Player-%d.log", opts.WorkerID)))
	}
	return append(args, opts.AdditionalArgs...)
}
