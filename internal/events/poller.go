package events

import (
	"sync"
	"time"
)

type poll struct {
	done chan struct{}
	once sync.Once
}

func (p *poll) cancel() {
	p.once.Do(func() { close(p.done) })
}

// StartPolling runs callback every interval until the returned stop is
// called. Starting a poll under a key that is already polling cancels the
// previous one first. stop does not wait for a callback that is already running.
func (b *Bus) StartPolling(key string, callback func(), interval time.Duration) (stop func()) {
	if callback == nil || interval <= 0 {
		return func() {}
	}

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return func() {}
	}
	p := &poll{done: make(chan struct{})}
	previous := b.polls[key]
	b.polls[key] = p
	b.mu.Unlock()

	if previous != nil {
		previous.cancel()
	}

	go b.runPoll(key, p, callback, interval)

	return func() {
		b.mu.Lock()
		if b.polls[key] == p {
			delete(b.polls, key)
		}
		b.mu.Unlock()
		p.cancel()
	}
}

func (b *Bus) runPoll(key string, p *poll, callback func(), interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			select {
			case <-p.done:
				return
			default:
			}
			b.safely("poll:"+key, "poll callback", callback)
		}
	}
}

// ActivePolls reports how many keys currently poll.
func (b *Bus) ActivePolls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.polls)
}
