package natsrpc

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/you-humble/chatmover/internal/domain"
	"github.com/you-humble/chatmover/internal/platform"
)

type connector struct {
	nc     *nats.Conn
	prefix string
}

func NewConnector(nc *nats.Conn, prefix string) *connector {
	return &connector{nc: nc, prefix: prefix}
}

// Connect asks the gateway to dial a user session from saved credentials.
// The gateway keeps the connection and hands back an opaque session id that
// scopes every later call.
func (c *connector) Connect(ctx context.Context, creds domain.Credentials) (platform.Session, error) {
	req := struct {
		Session string `json:"session"`
		APIID   int64  `json:"api_id"`
		APIHash string `json:"api_hash"`
	}{
		Session: creds.Session,
		APIID:   creds.APIID,
		APIHash: creds.APIHash,
	}

	probe := &client{nc: c.nc, prefix: c.prefix}

	var out struct {
		SessionID string `json:"session_id"`
		Premium   bool   `json:"premium"`
	}
	if err := probe.call(ctx, "connect", req, &out); err != nil {
		return nil, err
	}

	return &session{
		client:  client{nc: c.nc, prefix: c.prefix, session: out.SessionID},
		premium: out.Premium,
	}, nil
}

type session struct {
	client
	premium bool
}

func (s *session) Premium(ctx context.Context) (bool, error) {
	return s.premium, nil
}

func (s *session) JoinByInvite(ctx context.Context, link string) (domain.ChatInfo, error) {
	return s.inviteCall(ctx, "join_invite", link)
}

func (s *session) ResolveInvite(ctx context.Context, link string) (domain.ChatInfo, error) {
	return s.inviteCall(ctx, "resolve_invite", link)
}

func (s *session) inviteCall(ctx context.Context, op, link string) (domain.ChatInfo, error) {
	req := struct {
		Link string `json:"link"`
	}{Link: link}

	var out struct {
		Chat  string `json:"chat"`
		Title string `json:"title"`
	}
	if err := s.call(ctx, op, req, &out); err != nil {
		return domain.ChatInfo{}, err
	}

	return domain.ChatInfo{ID: domain.ChatID(out.Chat), Title: out.Title}, nil
}

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.call(ctx, "disconnect", struct{}{}, nil)
}
