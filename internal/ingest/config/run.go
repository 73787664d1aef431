package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// RunFile describes a batch: which server logs to aggregate and where the
// test-case delay trees live. Unset optional fields keep the env/flag value.
type RunFile struct {
	Name        string   `json:"name" yaml:"name"`
	Logs        []string `json:"logs" yaml:"logs"`
	CasesRoot   string   `json:"cases_root" yaml:"cases_root"`
	DelayColumn *int     `json:"delay_column" yaml:"delay_column"`

	WindowMs     *float64 `json:"window_ms" yaml:"window_ms"`
	SuppressZero *bool    `json:"suppress_zero" yaml:"suppress_zero"`
	Strict       *bool    `json:"strict" yaml:"strict"`

	Out       string `json:"out" yaml:"out"`
	ReportOut string `json:"report_out" yaml:"report_out"`
	DelaysOut string `json:"delays_out" yaml:"delays_out"`
}

// LoadRunFile reads a .yaml/.yml or .json run file. Relative log and case
// paths are resolved against the run file's directory.
func LoadRunFile(path string) (*RunFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf RunFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &rf); err != nil {
			return nil, err
		}
	case ".json":
		if err := sonic.Unmarshal(b, &rf); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported run file format (use .json or .yaml/.yml)")
	}
	if len(rf.Logs) == 0 && rf.CasesRoot == "" {
		return nil, errors.New("run file lists neither logs nor cases_root")
	}
	if rf.WindowMs != nil && !(*rf.WindowMs > 0) {
		return nil, errors.New("run file window_ms must be > 0")
	}

	base := filepath.Dir(path)
	for i, l := range rf.Logs {
		rf.Logs[i] = resolve(base, l)
	}
	if rf.CasesRoot != "" {
		rf.CasesRoot = resolve(base, rf.CasesRoot)
	}
	return &rf, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Apply copies the run file's overrides onto cfg.
func (rf *RunFile) Apply(cfg *Config) {
	if rf.WindowMs != nil {
		cfg.WindowMs = *rf.WindowMs
	}
	if rf.SuppressZero != nil {
		cfg.SuppressZero = *rf.SuppressZero
	}
}
