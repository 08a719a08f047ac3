package engine

import (
	"context"
	"sync"
	"time"

	"djmix/logger"
)

// Broadcaster delivers a typed message to every connected collaborator.
type Broadcaster interface {
	Broadcast(msgType string, data interface{})
}

// Publisher turns the engine's snapshot stream into state patches, level
// updates and track-ended events.
type Publisher struct {
	src           <-chan Snapshot
	out           Broadcaster
	levelInterval time.Duration
	stateInterval time.Duration
	now           func() time.Time

	mu      sync.RWMutex
	current Snapshot
	seen    bool

	last      Snapshot // last snapshot a state patch was built from
	published bool
	lastState time.Time
	lastLevel time.Time
}

// NewPublisher reads snapshots from src and writes messages to out. Level
// updates are limited to one per levelInterval; fade-only state changes to one
// per stateInterval.
func NewPublisher(src <-chan Snapshot, out Broadcaster, levelInterval, stateInterval time.Duration) *Publisher {
	return &Publisher{
		src:           src,
		out:           out,
		levelInterval: levelInterval,
		stateInterval: stateInterval,
		now:           time.Now,
	}
}

// Run consumes snapshots until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	logger.Info("State publisher started")
	defer logger.Info("State publisher stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-p.src:
			p.handle(s)
		}
	}
}

// State returns the full state as of the latest snapshot.
func (p *Publisher) State() AudioEngineState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return FullState(p.current)
}

// Resync makes the next message a full state, for a collaborator that has just
// connected.
func (p *Publisher) Resync() {
	p.mu.Lock()
	p.published = false
	p.mu.Unlock()
}

func (p *Publisher) handle(s Snapshot) {
	p.mu.Lock()
	prev, hadPrev := p.current, p.seen
	p.current, p.seen = s, true
	published := p.published
	p.mu.Unlock()

	now := p.now()

	if hadPrev {
		for i := range s.Decks {
			if s.Decks[i].EndSeq != prev.Decks[i].EndSeq {
				p.out.Broadcast(MsgTrackEnded, TrackEnded{Deck: DeckID(i).String(), TrackID: s.Decks[i].TrackID})
			}
		}
	}

	if !published {
		p.out.Broadcast(MsgState, FullState(s))
		p.markPublished(s, now)
	} else {
		patch, continuous := DiffState(p.last, s)
		if !patch.Empty() && (!continuous || now.Sub(p.lastState) >= p.stateInterval) {
			p.out.Broadcast(MsgState, patch)
			p.markPublished(s, now)
		}
	}

	if now.Sub(p.lastLevel) >= p.levelInterval {
		p.out.Broadcast(MsgLevels, Levels(s))
		p.lastLevel = now
	}
}

func (p *Publisher) markPublished(s Snapshot, now time.Time) {
	p.mu.Lock()
	p.published = true
	p.mu.Unlock()
	p.last = s
	p.lastState = now
}
