package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/models"
	"chat-engine/internal/ratelimit"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_MESSAGE_LENGTH", "not-a-number")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2,")
	t.Setenv("EMOTE_SEARCH_DEBOUNCE", "250ms")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 500, cfg.Engine.MaxMessageLength)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.SearchDebounce)
	assert.Equal(t, 30*time.Minute, cfg.Engine.CatalogRefresh)
	assert.Equal(t, 16, cfg.Engine.SearchPageSize)
	assert.Equal(t, 24, cfg.Engine.RecentLimit)
}

func TestParseTierPolicy(t *testing.T) {
	p, err := ParseTierPolicy(`
exempt_from = "Whale"

[cooldown_seconds]
standard = 10
vip = 3
high_roller = 1
`)
	require.NoError(t, err)
	assert.Equal(t, models.TierWhale, p.ExemptFrom)
	assert.Equal(t, 10, p.CooldownFor(models.TierStandard))
	assert.Equal(t, 1, p.CooldownFor(models.TierHighRoller))
	assert.Zero(t, p.CooldownFor(models.TierWhale))

	_, err = ParseTierPolicy("[cooldown_seconds]\nstandard = -1\n")
	assert.Error(t, err)
	_, err = ParseTierPolicy("exempt_from = ")
	assert.Error(t, err)
}

func TestParseTierPolicyRejectsUnknownTiers(t *testing.T) {
	_, err := ParseTierPolicy(`exempt_from = "highroller"`)
	assert.ErrorContains(t, err, "highroller")

	_, err = ParseTierPolicy("[cooldown_seconds]\ngold = 1\n")
	assert.ErrorContains(t, err, "gold")

	p, err := ParseTierPolicy(`
exempt_from = " High Roller "

[cooldown_seconds]
" VIP " = 4
`)
	require.NoError(t, err)
	assert.Equal(t, models.TierHighRoller, p.ExemptFrom)
	assert.Equal(t, 4, p.CooldownFor(models.TierVIP))
}

func TestWatchTierPolicyReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiers.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cooldown_seconds]\nstandard = 5\n"), 0o600))

	var mu sync.Mutex
	var got []ratelimit.Policy
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- WatchTierPolicy(ctx, path, 10*time.Millisecond, func(p ratelimit.Policy) {
			mu.Lock()
			got = append(got, p)
			mu.Unlock()
		})
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("[cooldown_seconds]\nstandard = 9\n"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].CooldownFor(models.TierStandard) == 9
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
