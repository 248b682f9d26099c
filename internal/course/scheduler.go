package course

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"courseboard/internal/notification"
)

// ReminderScheduler produces session_reminder notifications for class
// sessions that start within the lead window. It polls on a ticker; each
// due session is reminded exactly once, tracked by the ReminderSent flag
// so a restart never double-reminds.
type ReminderScheduler struct {
	store    *Store
	notifier *notification.Service
	lead     time.Duration
	poll     time.Duration
	log      zerolog.Logger
}

// NewReminderScheduler creates a scheduler. lead is how far ahead of a
// session the reminder goes out, poll how often due sessions are checked.
func NewReminderScheduler(store *Store, notifier *notification.Service, lead, poll time.Duration, log zerolog.Logger) *ReminderScheduler {
	if lead <= 0 {
		lead = time.Hour
	}
	if poll <= 0 {
		poll = time.Minute
	}
	return &ReminderScheduler{
		store:    store,
		notifier: notifier,
		lead:     lead,
		poll:     poll,
		log:      log,
	}
}

// Run polls until the context is cancelled.
func (rs *ReminderScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(rs.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := rs.CheckOnce(ctx); err != nil {
				rs.log.Warn().Err(err).Msg("reminder sweep failed")
			}
		case <-ctx.Done():
			rs.log.Debug().Msg("reminder scheduler stopped")
			return
		}
	}
}

// CheckOnce performs a single sweep over due sessions.
func (rs *ReminderScheduler) CheckOnce(ctx context.Context) error {
	now := time.Now()
	sessions, err := rs.store.DueSessions(ctx, now, now.Add(rs.lead))
	if err != nil {
		return err
	}

	for _, session := range sessions {
		participants, err := rs.store.ApprovedParticipantIDs(ctx, session.CourseID)
		if err != nil {
			rs.log.Warn().Err(err).Int64("session_id", session.ID).Msg("participant lookup failed")
			continue
		}

		for _, userID := range participants {
			if _, err := rs.notifier.SessionReminder(ctx, userID, session.CourseID, session.ID, session.StartsAt); err != nil {
				rs.log.Warn().Err(err).Int64("user_id", userID).Msg("reminder notification failed")
			}
		}

		if err := rs.store.MarkReminderSent(ctx, session.ID); err != nil {
			rs.log.Warn().Err(err).Int64("session_id", session.ID).Msg("reminder flag update failed")
			continue
		}

		rs.log.Info().Int64("session_id", session.ID).
			Int("participants", len(participants)).Msg("session reminders sent")
	}

	return nil
}
