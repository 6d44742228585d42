// internal/config/policy.go
package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const (
	defaultTickInterval     = 60 * time.Second
	defaultEscalationDelay  = 48 * time.Hour
	defaultStaleClaimAfter  = 30 * time.Minute
	defaultProviderTimeout  = 20 * time.Second
	defaultBatchConcurrency = 4
	defaultReminderSendHour = 9
	defaultTokenTTL         = 90 * 24 * time.Hour
	minTickInterval         = time.Second
)

// Policy is the runtime-tunable part of the configuration.
type Policy struct {
	TickInterval           time.Duration
	DefaultEscalationDelay time.Duration
	StaleClaimAfter        time.Duration
	ProviderTimeout        time.Duration
	BatchConcurrency       int
	ReminderSendHour       int
	TokenTTL               time.Duration
}

type policyFile struct {
	TickInterval           string `yaml:"tick_interval"`
	DefaultEscalationDelay string `yaml:"default_escalation_delay"`
	StaleClaimAfter        string `yaml:"stale_claim_after"`
	ProviderTimeout        string `yaml:"provider_timeout"`
	BatchConcurrency       *int   `yaml:"batch_concurrency"`
	ReminderSendHour       *int   `yaml:"reminder_send_hour"`
	TokenTTL               string `yaml:"token_ttl"`
}

// DefaultPolicy returns the baked-in escalation policy.
func DefaultPolicy() Policy {
	return Policy{
		TickInterval:           defaultTickInterval,
		DefaultEscalationDelay: defaultEscalationDelay,
		StaleClaimAfter:        defaultStaleClaimAfter,
		ProviderTimeout:        defaultProviderTimeout,
		BatchConcurrency:       defaultBatchConcurrency,
		ReminderSendHour:       defaultReminderSendHour,
		TokenTTL:               defaultTokenTTL,
	}
}

// Normalize clamps values into their supported ranges.
func (p Policy) Normalize() Policy {
	if p.TickInterval < minTickInterval {
		p.TickInterval = minTickInterval
	}
	if p.DefaultEscalationDelay < 0 {
		p.DefaultEscalationDelay = 0
	}
	if p.StaleClaimAfter < 0 {
		p.StaleClaimAfter = 0
	}
	if p.ProviderTimeout <= 0 {
		p.ProviderTimeout = defaultProviderTimeout
	}
	p.BatchConcurrency = clampInt(p.BatchConcurrency, 1, 64)
	p.ReminderSendHour = clampInt(p.ReminderSendHour, 0, 23)
	if p.TokenTTL <= 0 {
		p.TokenTTL = defaultTokenTTL
	}
	return p
}

// LoadPolicyFile overlays the YAML file at path on top of base.
func LoadPolicyFile(path string, base Policy) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return base, fmt.Errorf("parse policy yaml: %w", err)
	}

	p := base
	durations := []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{pf.TickInterval, &p.TickInterval, "tick_interval"},
		{pf.DefaultEscalationDelay, &p.DefaultEscalationDelay, "default_escalation_delay"},
		{pf.StaleClaimAfter, &p.StaleClaimAfter, "stale_claim_after"},
		{pf.ProviderTimeout, &p.ProviderTimeout, "provider_timeout"},
		{pf.TokenTTL, &p.TokenTTL, "token_ttl"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return base, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if pf.BatchConcurrency != nil {
		p.BatchConcurrency = *pf.BatchConcurrency
	}
	if pf.ReminderSendHour != nil {
		p.ReminderSendHour = *pf.ReminderSendHour
	}
	return p.Normalize(), nil
}

// WatchPolicy reloads the policy file whenever it changes and passes the result to fn.
// Invalid edits are logged and skipped. The watch stops when ctx is done.
func WatchPolicy(ctx context.Context, path string, base Policy, fn func(Policy)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				p, err := LoadPolicyFile(path, base)
				if err != nil {
					log.Printf("⚠️ policy reload failed: %v", err)
					continue
				}
				log.Printf("🔄 policy reloaded: tick=%s stale_claim_after=%s", p.TickInterval, p.StaleClaimAfter)
				fn(p)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("policy watcher error: %v", err)
			}
		}
	}()
	return nil
}
