package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Workspace struct {
	ID     string `yaml:"id"`
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`
}

type workspacesFile struct {
	Version    int         `yaml:"version"`
	Workspaces []Workspace `yaml:"workspaces"`
}

// WorkspaceResolver maps a request host to a workspace.
type WorkspaceResolver interface {
	Resolve(host string) (Workspace, bool)
}

type workspaceRegistry struct {
	byDomain map[string]Workspace
}

func (r *workspaceRegistry) Resolve(host string) (Workspace, bool) {
	ws, ok := r.byDomain[host]
	return ws, ok
}

func loadWorkspaceRegistry() (WorkspaceResolver, error) {
	path := os.Getenv("WORKSPACES_PATH")
	if path == "" {
		p, err := defaultWorkspacesPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wf workspacesFile
	if err := yaml.Unmarshal(b, &wf); err != nil {
		return nil, err
	}
	if wf.Version != 1 {
		return nil, errors.New("workspaces: unsupported version")
	}
	if len(wf.Workspaces) == 0 {
		return nil, errors.New("workspaces: empty")
	}

	byDomain := make(map[string]Workspace, len(wf.Workspaces))
	for _, ws := range wf.Workspaces {
		if ws.Domain == "" || ws.ID == "" {
			return nil, errors.New("workspaces: invalid workspace")
		}
		byDomain[strings.ToLower(ws.Domain)] = ws
	}
	return &workspaceRegistry{byDomain: byDomain}, nil
}

func defaultWorkspacesPath() (string, error) {
	path := "config/workspaces.yaml"
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New("server: workspaces config not found")
}

func effectiveHost(r *http.Request) string {
	if os.Getenv("TRUST_PROXY") == "1" {
		if h := forwardedHost(r); h != "" {
			return normalizeHostname(h)
		}
	}
	return normalizeHostname(r.Host)
}

func forwardedHost(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("X-Forwarded-Host"))
	if raw == "" {
		return ""
	}
	first, _, ok := strings.Cut(raw, ",")
	if ok {
		raw = first
	}
	return strings.TrimSpace(raw)
}

func normalizeHostname(host string) string {
	host = strings.TrimSpace(host)
	host = hostWithoutPort(host)
	return strings.ToLower(strings.TrimSpace(host))
}

func hostWithoutPort(host string) string {
	if h, _, ok := strings.Cut(host, ":"); ok {
		return h
	}
	return host
}
