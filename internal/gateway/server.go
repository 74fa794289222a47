package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/chorus/types"
)

const handlerTimeout = 10 * time.Second

// Handler is what the gateway process exposes to workers.
type Handler interface {
	GuildExists(ctx context.Context, guildID string) (bool, error)
	ChannelExists(ctx context.Context, guildID, channelID string) (bool, error)
	JoinVoice(ctx context.Context, guildID, channelID string, selfDeaf bool) (types.VoiceServer, error)
	LeaveVoice(ctx context.Context, guildID string) error
	GuildCount() int
}

// Server answers gateway requests for one bot client.
type Server struct {
	subs []*nats.Subscription
}

// Serve subscribes h to the request subjects of clientID.
//
// Several gateway replicas may serve the same client; requests are spread
// across them through a queue group.
//
// Parameters:
//   - conn: NATS connection
//   - clientID: Bot client ID
//   - h: Gateway implementation
//
// Returns:
//   - *Server: Running server, stopped with Close
//   - error: Subscription failure
func Serve(conn *nats.Conn, clientID string, h Handler) (*Server, error) {
	if conn == nil {
		return nil, types.ErrNATSConnectionRequired
	}

	queue := "chorus-gateway-" + clientID
	s := &Server{}
	routes := map[string]nats.MsgHandler{
		LookupSubject(clientID):     func(msg *nats.Msg) { reply(msg, handleLookup(h, msg.Data)) },
		VoiceJoinSubject(clientID):  func(msg *nats.Msg) { reply(msg, handleJoin(h, msg.Data)) },
		VoiceLeaveSubject(clientID): func(msg *nats.Msg) { reply(msg, handleLeave(h, msg.Data)) },
		StatsSubject(clientID):      func(msg *nats.Msg) { reply(msg, StatsReply{GuildCount: h.GuildCount()}) },
	}
	for subject, handler := range routes {
		sub, err := conn.QueueSubscribe(subject, queue, handler)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	return s, nil
}

// Close unsubscribes every subject.
func (s *Server) Close() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	s.subs = nil

	return errors.Join(errs...)
}

// PublishVoiceUpdate tells a worker its guild moved to a new voice server.
func PublishVoiceUpdate(conn *nats.Conn, workerID string, update VoiceUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}

	return conn.Publish(VoiceUpdateSubject(workerID), data)
}

func handleLookup(h Handler, data []byte) LookupReply {
	var req LookupRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return LookupReply{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var (
		exists bool
		err    error
	)
	if req.ChannelID == "" {
		exists, err = h.GuildExists(ctx, req.GuildID)
	} else {
		exists, err = h.ChannelExists(ctx, req.GuildID, req.ChannelID)
	}
	if err != nil {
		return LookupReply{Error: err.Error()}
	}

	return LookupReply{Exists: exists}
}

func handleJoin(h Handler, data []byte) VoiceReply {
	var req VoiceRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return VoiceReply{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	vs, err := h.JoinVoice(ctx, req.GuildID, req.ChannelID, req.SelfDeaf)
	if err != nil {
		return VoiceReply{Error: err.Error()}
	}

	return VoiceReply{Server: vs}
}

func handleLeave(h Handler, data []byte) VoiceReply {
	var req VoiceRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return VoiceReply{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.LeaveVoice(ctx, req.GuildID); err != nil {
		return VoiceReply{Error: err.Error()}
	}

	return VoiceReply{}
}

func reply(msg *nats.Msg, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = msg.Respond(data)
}
