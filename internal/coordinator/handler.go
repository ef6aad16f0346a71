package coordinator

import (
	"errors"
	"fmt"

	"github.com/danmuck/codetango/internal/protocol/session"
)

// handle runs one participant's receive loop. Liveness is polled between
// receives so an exited process stops its handler within one receive timeout.
func (c *Coordinator) handle(p *participant) {
	logger := c.logger.With().Str("program_id", p.id).Logger()
	defer c.markDone(p)

	for {
		if !c.alive(p) {
			logger.Debug().Msg("coordinator.handle participant exited")
			if c.cfg.Verbose {
				c.printf("%s has terminated\n", p.id)
			}
			return
		}
		raw, err := p.conn.Receive(c.cfg.Session.ReceiveTimeout)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrReceiveTimeout):
			continue
		case errors.Is(err, session.ErrMalformedMessage), errors.Is(err, session.ErrMessageTooLarge):
			c.rejectMessage(p, err)
			continue
		case errors.Is(err, session.ErrConnClosed):
			logger.Debug().Msg("coordinator.handle connection closed")
			return
		default:
			logger.Warn().Err(err).Msg("coordinator.handle receive failed")
			return
		}

		sub, err := session.DecodeSubmission(raw)
		if err != nil {
			c.rejectMessage(p, err)
			continue
		}
		c.submit(p.id, sub)
	}
}

// rejectMessage answers a malformed message with a failure verdict to its
// sender only.
func (c *Coordinator) rejectMessage(p *participant, cause error) {
	c.logger.Warn().Err(cause).Str("program_id", p.id).Msg("coordinator.handle malformed message")
	c.mu.Lock()
	c.cfg.Observer.Malformed(p.id)
	c.mu.Unlock()
	verdict := session.FailureVerdict(fmt.Sprintf("Invalid message format: %v", cause))
	if err := p.conn.Send(verdict); err != nil {
		c.logger.Warn().Err(err).Str("program_id", p.id).Msg("coordinator.handle send verdict failed")
	}
}

func (c *Coordinator) alive(p *participant) bool {
	c.mu.Lock()
	live := p.live
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}
	return live == nil || live.Alive()
}

func (c *Coordinator) markDone(p *participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.done = true
}
