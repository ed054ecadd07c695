package pak

import (
	"context"
	"fmt"
	"strings"
)

// fallbackPlatforms is returned when `pak platforms` is unavailable, so the UI
// always has a populated picker.
var fallbackPlatforms = []string{
	"linux", "macos", "windows", "docker", "npm", "pypi", "cargo", "gem",
}

// commandRunner is the port the service needs from the Runner.
type commandRunner interface {
	Execute(ctx context.Context, args []string, cwd string) (*Result, error)
}

// Service exposes the pak operations the console uses
type Service struct {
	runner commandRunner
}

// NewService creates a pak Service on top of the given runner
func NewService(runner commandRunner) *Service {
	return &Service{runner: runner}
}

// Status runs `pak status` and reports whether the tool is reachable
func (s *Service) Status(ctx context.Context) (*Result, error) {
	return s.runner.Execute(ctx, []string{"status"}, "")
}

// ListProjects runs `pak list` and returns one project name per output line
func (s *Service) ListProjects(ctx context.Context) ([]string, error) {
	result, err := s.runner.Execute(ctx, []string{"list"}, "")
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("pak list failed with exit code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return splitLines(result.Stdout), nil
}

// Deploy runs a deployment of a project to an environment. Version may be
// empty, in which case pak deploys the project's current version.
func (s *Service) Deploy(ctx context.Context, project, environment, version, cwd string) (*Result, error) {
	args := []string{"deploy", project, "--env", environment}
	if version != "" {
		args = append(args, "--version", version)
	}
	return s.runner.Execute(ctx, args, cwd)
}

// Package builds a distributable package of a project
func (s *Service) Package(ctx context.Context, project, version, cwd string) (*Result, error) {
	args := []string{"package", project}
	if version != "" {
		args = append(args, "--version", version)
	}
	return s.runner.Execute(ctx, args, cwd)
}

// Platforms runs `pak platforms` and falls back to the static list when the
// tool is missing, times out, or errors.
func (s *Service) Platforms(ctx context.Context) []string {
	result, err := s.runner.Execute(ctx, []string{"platforms"}, "")
	if err != nil || result.ExitCode != 0 {
		return fallbackPlatforms
	}
	platforms := splitLines(result.Stdout)
	if len(platforms) == 0 {
		return fallbackPlatforms
	}
	return platforms
}

// splitLines returns the non-empty trimmed lines of s
func splitLines(s string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
