package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/realtime"
	"github.com/lalith-99/courtyard/internal/repository"
	"go.uber.org/zap"
)

// CallSignaling runs the call state machine:
//
//	INITIATED -> ANSWERED -> ENDED
//	INITIATED -> MISSED
//	INITIATED -> REJECTED
//
// Every transition locks the call row, so concurrent answer/end/reject on
// one call are serialized and only one terminal state is ever recorded.
type CallSignaling struct {
	*base
	notify *NotificationFanout
}

// transition is the outcome of a terminal change.
type transition struct {
	call     *models.Call
	channel  *models.Channel
	timeline *models.Message
	actorID  uuid.UUID
}

// Initiate places a call from the caller to receiverID in channelID.
// The receiver's connections in the channel's building get a call offer;
// when none takes it the receiver gets a push instead.
func (s *CallSignaling) Initiate(ctx context.Context, p auth.Principal, channelID, receiverID uuid.UUID, video bool) (*models.Call, error) {
	ch, err := channelFor(ctx, s.store, p, channelID)
	if err != nil {
		return nil, err
	}
	if ch.IsClosed {
		return nil, apperr.ChannelClosed()
	}
	if _, err := requireMember(ctx, s.store, ch.ID, p.UserID); err != nil {
		return nil, err
	}
	if receiverID == p.UserID || receiverID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "a call needs another participant")
	}
	receiver, err := activeMembership(ctx, s.store, ch.ID, receiverID)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "receiver is not a member of this channel")
	}

	call, err := s.store.Calls().Create(ctx, &models.Call{
		ID:         uuid.New(),
		ChannelID:  ch.ID,
		CallerID:   p.UserID,
		ReceiverID: receiverID,
		Status:     models.CallStatusInitiated,
		IsVideo:    video,
	})
	if err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}

	s.logger.Info("call initiated",
		zap.String("call_id", call.ID.String()),
		zap.String("channel_id", ch.ID.String()),
		zap.Bool("video", video),
	)
	s.after("call.offer", func(ctx context.Context) {
		if s.presence.Deliver(receiverID, ch.TenantID, realtime.NewEnvelope(realtime.EventCallOffer, ch.ID, call)) > 0 {
			return
		}
		body := "Incoming call"
		if video {
			body = "Incoming video call"
		}
		s.notify.PushOnly(receiverID, s.displayName(ctx, p.UserID), body, models.NotificationTypeCallIncoming, &ch.ID)
	})
	return call, nil
}

// lockCall loads the call for update inside tx and checks the caller's
// building.
func lockCall(ctx context.Context, tx repository.Store, p auth.Principal, callID uuid.UUID) (*models.Call, *models.Channel, error) {
	call, err := tx.Calls().GetForUpdate(ctx, callID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock call: %w", err)
	}
	if call == nil {
		return nil, nil, apperr.NotFound("call not found")
	}
	ch, err := channelFor(ctx, tx, p, call.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	return call, ch, nil
}

// Answer is INITIATED -> ANSWERED, receiver only.
func (s *CallSignaling) Answer(ctx context.Context, p auth.Principal, callID uuid.UUID) (*models.Call, error) {
	var (
		answered *models.Call
		ch       *models.Channel
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		call, c, err := lockCall(ctx, tx, p, callID)
		if err != nil {
			return err
		}
		if call.ReceiverID != p.UserID {
			return apperr.Authorization(apperr.CodeForbidden, "only the receiver can answer")
		}
		if call.Status != models.CallStatusInitiated {
			return apperr.StateConflict(apperr.CodeInvalidCallTransition, "call is %s", call.Status)
		}

		now := s.now()
		call.Status = models.CallStatusAnswered
		call.StartedAt = &now
		answered, err = tx.Calls().Update(ctx, call)
		if err != nil {
			return fmt.Errorf("answer call: %w", err)
		}
		ch = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.after("call.answered", func(ctx context.Context) {
		s.presence.Deliver(answered.CallerID, ch.TenantID, realtime.NewEnvelope(realtime.EventCallAnswered, ch.ID, answered))
	})
	return answered, nil
}

// End hangs up. An answered call becomes ENDED with its duration; a call
// that was never answered becomes MISSED. Ending a finished call returns
// it unchanged.
func (s *CallSignaling) End(ctx context.Context, p auth.Principal, callID uuid.UUID) (*models.Call, error) {
	return s.finish(ctx, p, callID, false)
}

// Reject is INITIATED -> REJECTED, receiver only. Rejecting a finished call
// returns it unchanged.
func (s *CallSignaling) Reject(ctx context.Context, p auth.Principal, callID uuid.UUID) (*models.Call, error) {
	return s.finish(ctx, p, callID, true)
}

func (s *CallSignaling) finish(ctx context.Context, p auth.Principal, callID uuid.UUID, reject bool) (*models.Call, error) {
	var (
		result *models.Call
		done   *transition
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		call, ch, err := lockCall(ctx, tx, p, callID)
		if err != nil {
			return err
		}
		if reject && call.ReceiverID != p.UserID {
			return apperr.Authorization(apperr.CodeForbidden, "only the receiver can reject")
		}
		if !call.IsParticipant(p.UserID) {
			return apperr.Authorization(apperr.CodeForbidden, "not a participant of this call")
		}
		if call.Status.Terminal() {
			result = call
			return nil
		}
		if reject && call.Status != models.CallStatusInitiated {
			return apperr.StateConflict(apperr.CodeInvalidCallTransition, "call is %s", call.Status)
		}

		done, err = s.terminate(ctx, tx, call, ch, p.UserID, reject)
		if err != nil {
			return err
		}
		result = done.call
		return nil
	})
	if err != nil {
		return nil, err
	}
	if done != nil {
		s.announce(ctx, done)
	}
	return result, nil
}

// terminate moves a live call to its terminal state and writes the
// timeline message. It runs inside the caller's transaction with the call
// row locked.
func (s *CallSignaling) terminate(ctx context.Context, tx repository.Store, call *models.Call, ch *models.Channel, actorID uuid.UUID, reject bool) (*transition, error) {
	now := s.now()
	call.EndedAt = &now

	var content string
	switch {
	case reject:
		call.Status = models.CallStatusRejected
		content = "call declined"
	case call.Status == models.CallStatusAnswered && call.StartedAt != nil:
		call.Status = models.CallStatusEnded
		call.DurationSeconds = int(now.Sub(*call.StartedAt) / time.Second)
		content = "call ended (" + formatDuration(call.DurationSeconds) + ")"
	default:
		call.Status = models.CallStatusMissed
		content = "missed call"
	}

	updated, err := tx.Calls().Update(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("update call: %w", err)
	}

	callID := updated.ID
	msg, err := tx.Messages().Create(ctx, &models.Message{
		ChannelID: ch.ID,
		SenderID:  updated.CallerID,
		Content:   content,
		Type:      models.MessageTypeCall,
		CallID:    &callID,
	})
	if err != nil {
		return nil, fmt.Errorf("create call timeline message: %w", err)
	}
	if err := tx.Channels().Touch(ctx, ch.ID, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("touch channel: %w", err)
	}

	s.logger.Info("call finished",
		zap.String("call_id", updated.ID.String()),
		zap.String("status", string(updated.Status)),
		zap.Int("duration_seconds", updated.DurationSeconds),
	)
	return &transition{call: updated, channel: ch, timeline: msg, actorID: actorID}, nil
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// announce runs after commit. ENDED and MISSED calls leave a notification
// for the other party; the signal to the other party and the timeline
// message go out on the job queue.
func (s *CallSignaling) announce(ctx context.Context, t *transition) {
	call, ch := t.call, t.channel
	other := call.OtherParty(t.actorID)

	var (
		typ  models.NotificationType
		body string
	)
	switch call.Status {
	case models.CallStatusMissed:
		typ, body = models.NotificationTypeMissedCall, "Missed call"
	case models.CallStatusEnded:
		typ, body = models.NotificationTypeCall, "Call ended ("+formatDuration(call.DurationSeconds)+")"
	}
	if typ != "" {
		s.notify.notifyAll(ctx, []CreateNotificationInput{{
			RecipientID: other,
			TenantID:    ch.TenantID,
			Title:       s.displayName(ctx, t.actorID),
			Body:        body,
			Type:        typ,
			ChannelID:   &ch.ID,
		}})
	}

	s.after("call.finished", func(ctx context.Context) {
		event := realtime.EventCallEnded
		if call.Status == models.CallStatusRejected {
			event = realtime.EventCallRejected
		}
		s.presence.Deliver(other, ch.TenantID, realtime.NewEnvelope(event, ch.ID, call))
		s.broadcast(ctx, ch, realtime.NewEnvelope(realtime.EventMessageNew, ch.ID, t.timeline))
	})
}

// Get returns a call visible to a participant or a channel member.
func (s *CallSignaling) Get(ctx context.Context, p auth.Principal, callID uuid.UUID) (*models.Call, error) {
	call, err := s.store.Calls().GetByID(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	if call == nil {
		return nil, apperr.NotFound("call not found")
	}
	ch, err := channelFor(ctx, s.store, p, call.ChannelID)
	if err != nil {
		return nil, err
	}
	if !call.IsParticipant(p.UserID) {
		if _, err := requireMember(ctx, s.store, ch.ID, p.UserID); err != nil {
			return nil, err
		}
	}
	return call, nil
}

// History lists the channel's calls, newest first.
func (s *CallSignaling) History(ctx context.Context, p auth.Principal, channelID uuid.UUID, page models.Page) ([]models.Call, error) {
	ch, err := channelFor(ctx, s.store, p, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, s.store, ch.ID, p.UserID); err != nil {
		return nil, err
	}
	calls, err := s.store.Calls().ListByChannel(ctx, ch.ID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return calls, nil
}

// ExpireRinging marks calls that have rung longer than timeout as MISSED,
// as if the caller had hung up. It returns how many calls it expired.
func (s *CallSignaling) ExpireRinging(ctx context.Context, timeout time.Duration) (int, error) {
	ringing, err := s.store.Calls().ListRingingBefore(ctx, s.now().Add(-timeout), 100)
	if err != nil {
		return 0, fmt.Errorf("list ringing calls: %w", err)
	}

	expired := 0
	for _, c := range ringing {
		var done *transition
		err := s.store.InTx(ctx, func(tx repository.Store) error {
			call, err := tx.Calls().GetForUpdate(ctx, c.ID)
			if err != nil {
				return fmt.Errorf("lock call: %w", err)
			}
			if call == nil || call.Status != models.CallStatusInitiated {
				return nil
			}
			ch, err := loadChannel(ctx, tx, call.ChannelID)
			if err != nil {
				return err
			}
			done, err = s.terminate(ctx, tx, call, ch, call.CallerID, false)
			return err
		})
		if err != nil {
			s.logger.Error("expire ringing call", zap.String("call_id", c.ID.String()), zap.Error(err))
			continue
		}
		if done != nil {
			expired++
			s.announce(ctx, done)
		}
	}
	return expired, nil
}

// RunRingTimeout sweeps for unanswered calls every interval until ctx is
// cancelled.
func (s *CallSignaling) RunRingTimeout(ctx context.Context, timeout time.Duration) error {
	interval := timeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := s.ExpireRinging(ctx, timeout); err != nil {
				s.logger.Error("ring timeout sweep", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("expired ringing calls", zap.Int("count", n))
			}
		}
	}
}
