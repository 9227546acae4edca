package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/larriantoniy/tg_license_bot/internal/ports"
)

type JSONSessionConfigRepo struct {
	baseDir string // "./tdlib-sessions"
}

func NewJSONSessionConfigRepo(baseDir string) *JSONSessionConfigRepo {
	return &JSONSessionConfigRepo{baseDir: baseDir}
}

func (r *JSONSessionConfigRepo) ListSessions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// GetSessionConfig ищет <name>/<name>.json, затем <name>/config.json
func (r *JSONSessionConfigRepo) GetSessionConfig(ctx context.Context, sessionName string) (*ports.SessionConfig, error) {
	raw, err := r.readRaw(sessionName)
	if err != nil {
		return nil, err
	}

	sessName := raw.SessionFile
	if sessName == "" {
		sessName = sessionName
	}

	proxyCfg, err := raw.ToProxyConfig()
	if err != nil {
		return nil, fmt.Errorf("proxy parse: %w", err)
	}

	return &ports.SessionConfig{
		SessionName:        sessName,
		Phone:              raw.Phone,
		DeviceModel:        raw.Device,
		SystemVersion:      raw.SDK,
		ApplicationVersion: raw.AppVersion,
		LangCode:           raw.LangCode,
		Proxy:              proxyCfg,
	}, nil
}

func (r *JSONSessionConfigRepo) readRaw(sessionName string) (*RawSessionConfig, error) {
	candidates := []string{
		filepath.Join(r.baseDir, sessionName, sessionName+".json"),
		filepath.Join(r.baseDir, sessionName, "config.json"),
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var raw RawSessionConfig
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", path, err)
		}
		return &raw, nil
	}
	return nil, fmt.Errorf("session %q: no config file in %s", sessionName, filepath.Join(r.baseDir, sessionName))
}
