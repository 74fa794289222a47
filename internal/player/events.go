package player

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/chorus/types"
)

// eventLoop consumes backend events until Stop, ctx cancellation, or the
// backend closing its event channel.
func (m *Manager) eventLoop(ctx context.Context) {
	defer close(m.doneCh)

	events := m.backend.Events()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				m.logger.Warn("audio backend event stream closed")
				return
			}
			m.handleEvent(ctx, ev)
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, ev types.BackendEvent) {
	switch ev.Type {
	case types.EventTrackStart, types.EventTrackEnd:
		m.onTrackBoundary(ctx, ev)
	case types.EventQueueEnd:
		m.onQueueEnd(ctx, ev)
	case types.EventNodeReady:
		m.logger.Info("audio node ready", "node_id", ev.NodeID)
	case types.EventNodeClosed:
		m.logger.Warn("audio node closed", "node_id", ev.NodeID, "reason", ev.Reason)
	default:
		m.logger.Debug("ignoring backend event", "type", ev.Type, "guild_id", ev.GuildID)
	}
}

// onTrackBoundary saves the snapshot when a track starts or ends.
func (m *Manager) onTrackBoundary(ctx context.Context, ev types.BackendEvent) {
	ectx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	unlock := m.lock(ev.GuildID)
	defer unlock()

	session, ok := m.sessions.Load(ev.GuildID)
	if !ok {
		return
	}
	if err := m.checkOwner(ectx, ev.GuildID); err != nil {
		return
	}
	m.save(ectx, ev.GuildID, session)
}

// onQueueEnd refills the queue via autoplay, keeps a 24/7 session idle, or
// tears the session down.
func (m *Manager) onQueueEnd(ctx context.Context, ev types.BackendEvent) {
	ectx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	unlock := m.lock(ev.GuildID)
	defer unlock()

	session, ok := m.sessions.Load(ev.GuildID)
	if !ok {
		return
	}
	if err := m.checkOwner(ectx, ev.GuildID); err != nil {
		if errors.Is(err, types.ErrOwnershipConflict) {
			m.releaseLocal(ectx, ev.GuildID, session)
		}

		return
	}

	state := session.State()
	if state.AutoPlay && ev.Track != nil {
		if next, err := m.autoPlayNext(ectx, *ev.Track); err == nil {
			session.Enqueue(next)
			if err := session.Play(ectx); err == nil {
				m.save(ectx, ev.GuildID, session)
				return
			}
		} else {
			m.logger.Debug("autoplay found nothing", "guild_id", ev.GuildID, "error", err)
		}
	}

	if state.Persistent {
		m.save(ectx, ev.GuildID, session)
		return
	}

	m.logger.Info("queue ended, leaving voice channel", "guild_id", ev.GuildID)
	m.dropSession(ectx, ev.GuildID, session)
}

// autoPlayNext finds a related track for last: the first "author - title"
// search hit that is not last itself.
func (m *Manager) autoPlayNext(ctx context.Context, last types.Track) (types.Track, error) {
	query := last.Info.Title
	if last.Info.Author != "" {
		query = fmt.Sprintf("%s - %s", last.Info.Author, last.Info.Title)
	}

	res, err := m.backend.Search(ctx, query, last.Info.Requester)
	if err != nil {
		return types.Track{}, err
	}
	for _, t := range res.Tracks {
		if !sameTrack(t, last) {
			return t, nil
		}
	}

	return types.Track{}, types.ErrNoResults
}

func sameTrack(a, b types.Track) bool {
	if a.Encoded != "" && a.Encoded == b.Encoded {
		return true
	}

	return a.Info.URI != "" && a.Info.URI == b.Info.URI
}

// releaseLocal ends a session whose guild now belongs to another worker.
// The snapshot and assignment belong to the new owner and are left alone.
func (m *Manager) releaseLocal(ctx context.Context, guildID string, session types.Session) {
	if err := session.Destroy(ctx); err != nil {
		m.logger.Warn("failed to destroy session", "guild_id", guildID, "error", err)
	}
	m.sessions.Delete(guildID)
	m.metrics.RecordSessions(m.sessions.Size())
	m.logger.Info("released session of reassigned guild", "guild_id", guildID)
}
