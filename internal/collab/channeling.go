package collab

import (
	"github.com/google/uuid"

	"github.com/palaver-dev/palaver/internal/errors"
)

// InitiateChanneling opens a one-shot session in which the channeler
// transforms a source participant's message for a target audience.
func (c *Coordinator) InitiateChanneling(channeler, source string, mode ChannelMode, audience []string) (string, error) {
	if channeler == "" {
		return "", errors.NewValidationError("channeler", "must not be empty")
	}
	if source == "" {
		return "", errors.NewValidationError("source", "must not be empty")
	}
	if len(audience) == 0 {
		return "", errors.NewValidationError("audience", "must not be empty")
	}

	s := &ChannelingSession{
		ID:        uuid.NewString(),
		Channeler: channeler,
		Source:    source,
		Mode:      mode,
		Audience:  append([]string(nil), audience...),
		CreatedAt: c.clk.Now(),
	}

	c.mu.Lock()
	c.channelings[s.ID] = s
	c.mu.Unlock()

	c.logger.Info("channeling initiated",
		"session_id", s.ID, "channeler", channeler, "mode", mode.String())
	c.send("channeling_initiated", map[string]any{
		"session_id": s.ID,
		"mode":       mode.String(),
	}, channeler)

	return s.ID, nil
}

// CompleteChanneling broadcasts the transformed message to the
// session's audience and removes the session. Completing a consumed or
// unknown session fails with ErrNotFound.
func (c *Coordinator) CompleteChanneling(sessionID, transformed string) error {
	c.mu.Lock()
	s, ok := c.channelings[sessionID]
	if !ok {
		c.mu.Unlock()
		return errors.NewNotFoundError("channeling session", sessionID)
	}
	delete(c.channelings, sessionID)
	audience := s.Audience
	c.mu.Unlock()

	c.send("channeled_message", map[string]any{
		"session_id": sessionID,
		"source":     s.Source,
		"mode":       s.Mode.String(),
		"message":    transformed,
	}, audience...)
	return nil
}
