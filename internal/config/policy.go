package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"chat-engine/internal/models"
	"chat-engine/internal/ratelimit"
)

// tierPolicyFile is the on-disk form of a send cooldown policy:
//
//	exempt_from = "high_roller"
//	[cooldown_seconds]
//	standard = 5
//	vip = 2
type tierPolicyFile struct {
	ExemptFrom      string         `toml:"exempt_from"`
	CooldownSeconds map[string]int `toml:"cooldown_seconds"`
}

// LoadTierPolicy decodes a TOML policy file. Tier names are normalized and
// an unknown name is an error.
func LoadTierPolicy(path string) (ratelimit.Policy, error) {
	var file tierPolicyFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return ratelimit.Policy{}, fmt.Errorf("decode tier policy %s: %w", path, err)
	}
	return file.policy()
}

// ParseTierPolicy decodes a TOML policy document.
func ParseTierPolicy(doc string) (ratelimit.Policy, error) {
	var file tierPolicyFile
	if _, err := toml.Decode(doc, &file); err != nil {
		return ratelimit.Policy{}, fmt.Errorf("decode tier policy: %w", err)
	}
	return file.policy()
}

func (f tierPolicyFile) policy() (ratelimit.Policy, error) {
	p := ratelimit.Policy{CooldownSeconds: make(map[models.Tier]int, len(f.CooldownSeconds))}
	for name, secs := range f.CooldownSeconds {
		if secs < 0 {
			return ratelimit.Policy{}, fmt.Errorf("tier policy: negative cooldown for %q", name)
		}
		tier, ok := models.LookupTier(name)
		if !ok {
			return ratelimit.Policy{}, fmt.Errorf("tier policy: unknown tier %q in cooldown_seconds", name)
		}
		p.CooldownSeconds[tier] = secs
	}
	if f.ExemptFrom != "" {
		tier, ok := models.LookupTier(f.ExemptFrom)
		if !ok {
			return ratelimit.Policy{}, fmt.Errorf("tier policy: unknown exempt_from tier %q", f.ExemptFrom)
		}
		p.ExemptFrom = tier
	}
	return p, nil
}

// WatchTierPolicy reloads the policy file on every write and hands the
// result to apply. Invalid files are logged and skipped. It returns when
// ctx is cancelled.
func WatchTierPolicy(ctx context.Context, path string, debounce time.Duration, apply func(ratelimit.Policy)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are picked up.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			policy, err := LoadTierPolicy(path)
			if err != nil {
				log.Printf("tier policy reload skipped path=%s err=%v", path, err)
				continue
			}
			log.Printf("tier policy reloaded path=%s tiers=%d exempt_from=%s", path, len(policy.CooldownSeconds), policy.ExemptFrom)
			apply(policy)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("tier policy watcher error path=%s err=%v", path, err)
		}
	}
}
