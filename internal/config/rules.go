package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	yaml "go.yaml.in/yaml/v3"

	"github.com/promohub/channel-dispatch/internal/domain"
)

// Rules maps every channel to its pacing rule.
type Rules map[domain.Channel]domain.ChannelRule

// ruleSpec is the YAML shape of one channel rule. Durations are written
// in Go duration syntax ("15m", "900s").
type ruleSpec struct {
	MinInterval string `yaml:"min_interval"`
	DailyCap    int    `yaml:"daily_cap"`
	Enabled     *bool  `yaml:"enabled"`
}

// DefaultRules returns the built-in pacing rules, used when no rules
// file is present and as the base that a partial file overrides.
func DefaultRules() Rules {
	return Rules{
		domain.ChannelTelegram:  {MinInterval: 3 * time.Minute, DailyCap: 0, Enabled: true},
		domain.ChannelSite:      {MinInterval: 1 * time.Minute, DailyCap: 0, Enabled: true},
		domain.ChannelTwitter:   {MinInterval: 15 * time.Minute, DailyCap: 50, Enabled: true},
		domain.ChannelWhatsApp:  {MinInterval: 3 * time.Hour, DailyCap: 10, Enabled: true},
		domain.ChannelInstagram: {MinInterval: 6 * time.Hour, DailyCap: 4, Enabled: false},
		domain.ChannelFacebook:  {MinInterval: 30 * time.Minute, DailyCap: 10, Enabled: false},
	}
}

// LoadRules reads the rules file and merges it over the defaults.
// A missing file is not an error: defaults apply unchanged.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rules, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var specs map[string]ruleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	for name, spec := range specs {
		ch := domain.Channel(name)
		if !ch.IsValid() {
			return nil, fmt.Errorf("rules file: unknown channel %q", name)
		}
		rule := rules[ch]
		if spec.MinInterval != "" {
			d, err := time.ParseDuration(spec.MinInterval)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("rules file: channel %q: invalid min_interval %q", name, spec.MinInterval)
			}
			rule.MinInterval = d
		}
		if spec.DailyCap >= 0 {
			rule.DailyCap = spec.DailyCap
		}
		if spec.Enabled != nil {
			rule.Enabled = *spec.Enabled
		}
		rules[ch] = rule
	}

	return rules, nil
}

// WatchRules re-reads the rules file whenever it changes and hands the
// result to onChange. Invalid edits are logged and skipped; the previous
// rules stay in effect. Returns once ctx is cancelled.
func WatchRules(ctx context.Context, path string, logger *zap.Logger, onChange func(Rules)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the file itself when it exists; editors that replace the file
	// (rename + create) still produce events on the path.
	if err := watcher.Add(path); err != nil {
		logger.Warn("rules file not watchable, hot reload disabled",
			zap.String("path", path), zap.Error(err))
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			rules, err := LoadRules(path)
			if err != nil {
				logger.Warn("rules reload failed, keeping previous rules",
					zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("channel rules reloaded", zap.String("path", path))
			onChange(rules)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("rules watcher error", zap.Error(err))
		}
	}
}
