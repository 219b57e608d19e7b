package collab

import (
	"github.com/google/uuid"

	"github.com/palaver-dev/palaver/internal/errors"
)

// InitiateMediation opens an Active session between participants under
// a mediator and notifies everyone involved.
func (c *Coordinator) InitiateMediation(mediator string, participants []string, topic string) (string, error) {
	if mediator == "" {
		return "", errors.NewValidationError("mediator", "must not be empty")
	}
	if len(participants) < 2 {
		return "", errors.NewValidationError("participants", "mediation needs at least two")
	}

	s := &MediationSession{
		ID:           uuid.NewString(),
		Mediator:     mediator,
		Participants: append([]string(nil), participants...),
		Topic:        topic,
		Status:       SessionActive,
		CreatedAt:    c.clk.Now(),
	}

	c.mu.Lock()
	c.mediations[s.ID] = s
	c.mu.Unlock()

	c.logger.Info("mediation initiated",
		"session_id", s.ID, "mediator", mediator, "topic", topic)
	c.send("mediation_initiated", map[string]any{
		"session_id": s.ID,
		"mediator":   mediator,
		"topic":      topic,
	}, participants...)

	return s.ID, nil
}

// MediateMessage routes a message to every session participant except
// the sender. The session must be Active and the sender must belong to
// it.
func (c *Coordinator) MediateMessage(sessionID, sender, message string) error {
	c.mu.Lock()
	s, ok := c.mediations[sessionID]
	if !ok {
		c.mu.Unlock()
		return errors.NewNotFoundError("mediation session", sessionID)
	}
	if s.Status != SessionActive {
		c.mu.Unlock()
		return errors.NewStateError("mediation", s.Status.String(), "mediate")
	}
	inSession := sender == s.Mediator
	var recipients []string
	for _, p := range s.Participants {
		if p == sender {
			inSession = true
			continue
		}
		recipients = append(recipients, p)
	}
	c.mu.Unlock()

	if !inSession {
		return errors.NewValidationError("sender", "not part of the session")
	}

	c.send("mediation_message", map[string]any{
		"session_id": sessionID,
		"sender":     sender,
		"message":    message,
	}, recipients...)
	return nil
}

// ResolveMediation transitions the session to Resolved and broadcasts
// the resolution to the participants and the mediator. Further
// operations on the session fail.
func (c *Coordinator) ResolveMediation(sessionID, resolution string) error {
	c.mu.Lock()
	s, ok := c.mediations[sessionID]
	if !ok {
		c.mu.Unlock()
		return errors.NewNotFoundError("mediation session", sessionID)
	}
	if s.Status != SessionActive {
		c.mu.Unlock()
		return errors.NewStateError("mediation", s.Status.String(), "resolve")
	}
	s.Status = SessionResolved
	s.Resolution = resolution
	s.ResolvedAt = c.clk.Now()
	recipients := append([]string(nil), s.Participants...)
	recipients = append(recipients, s.Mediator)
	c.mu.Unlock()

	c.logger.Info("mediation resolved", "session_id", sessionID)
	c.send("mediation_resolved", map[string]any{
		"session_id": sessionID,
		"resolution": resolution,
	}, recipients...)
	return nil
}

// Mediation returns a copy of the session.
func (c *Coordinator) Mediation(sessionID string) (MediationSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.mediations[sessionID]
	if !ok {
		return MediationSession{}, errors.NewNotFoundError("mediation session", sessionID)
	}
	cp := *s
	cp.Participants = append([]string(nil), s.Participants...)
	return cp, nil
}
