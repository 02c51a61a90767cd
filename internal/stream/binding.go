// Package stream binds the active channel to the live state of its stream.
package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/samber/mo"

	"chat-engine/internal/errs"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
)

const DefaultPollInterval = 30 * time.Second

// Backend reports stream status for a channel.
type Backend interface {
	FetchStreamStatus(ctx context.Context, channelID string) (models.StreamStatus, error)
}

// State is a copy of the binding for snapshots.
type State struct {
	ChannelID string                         `json:"channel_id"`
	Status    mo.Option[models.StreamStatus] `json:"status"`
	Error     string                         `json:"error,omitempty"`
}

// Binding polls the stream status of one channel at a time.
type Binding struct {
	backend  Backend
	interval time.Duration
	base     context.Context
	onChange func()

	mu        sync.Mutex
	channelID string
	status    mo.Option[models.StreamStatus]
	err       error
	gen       uint64
	cancel    context.CancelFunc
}

// New builds an unbound binding. base bounds every poll loop.
func New(base context.Context, backend Backend, interval time.Duration, onChange func()) *Binding {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Binding{backend: backend, interval: interval, base: base, onChange: onChange}
}

// Bind switches the binding to channelID and starts polling. Binding the
// already bound channel is a no-op.
func (b *Binding) Bind(channelID string) {
	b.mu.Lock()
	if channelID == b.channelID && b.cancel != nil {
		b.mu.Unlock()
		return
	}
	b.stopLocked()
	b.channelID = channelID
	b.status = mo.None[models.StreamStatus]()
	b.err = nil
	ctx, cancel := context.WithCancel(b.base)
	b.cancel = cancel
	gen := b.gen
	b.mu.Unlock()
	b.onChange()

	go b.loop(ctx, gen, channelID)
}

// Unbind stops polling and forgets the channel.
func (b *Binding) Unbind() {
	b.mu.Lock()
	b.stopLocked()
	had := b.channelID != ""
	b.channelID = ""
	b.status = mo.None[models.StreamStatus]()
	b.err = nil
	b.mu.Unlock()
	if had {
		b.onChange()
	}
}

// Refresh polls the bound channel once, outside the regular schedule.
func (b *Binding) Refresh(ctx context.Context) error {
	b.mu.Lock()
	channelID, gen := b.channelID, b.gen
	b.mu.Unlock()
	if channelID == "" {
		return errs.ErrNoActiveChannel
	}
	return b.poll(ctx, gen, channelID)
}

// State returns a copy for snapshots.
func (b *Binding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := State{ChannelID: b.channelID, Status: b.status}
	if b.err != nil {
		st.Error = b.err.Error()
	}
	return st
}

// Close stops polling.
func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

func (b *Binding) stopLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.gen++
}

func (b *Binding) loop(ctx context.Context, gen uint64, channelID string) {
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		if err := b.poll(ctx, gen, channelID); err != nil && ctx.Err() == nil {
			log.Printf("stream status poll failed channel_id=%s err=%v", channelID, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (b *Binding) poll(ctx context.Context, gen uint64, channelID string) error {
	status, err := b.backend.FetchStreamStatus(ctx, channelID)

	b.mu.Lock()
	if gen != b.gen || channelID != b.channelID {
		b.mu.Unlock()
		observability.IncStaleResponse("stream")
		return nil
	}
	if err != nil {
		b.err = errs.Transport("fetch stream status", err)
		err = b.err
		b.mu.Unlock()
		b.onChange()
		return err
	}
	if status.ChannelID == "" {
		status.ChannelID = channelID
	}
	b.status = mo.Some(status)
	b.err = nil
	b.mu.Unlock()
	b.onChange()
	return nil
}
