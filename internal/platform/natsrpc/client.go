// Package natsrpc implements the platform ports over NATS request/reply.
// The actual messaging connection lives in the gateway process (the same one
// that owns the interactive UI); this adapter forwards calls to it and maps
// its error envelope onto the domain taxonomy. Payload files move through
// the staging volume both processes share; only paths cross the wire.
package natsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/you-humble/chatmover/internal/domain"
	"github.com/you-humble/chatmover/internal/platform"
)

type client struct {
	nc      *nats.Conn
	prefix  string
	session string
}

// NewBotClient returns the limited bot identity: every gateway op without a
// session id runs as the bot.
func NewBotClient(nc *nats.Conn, prefix string) *client {
	return &client{nc: nc, prefix: prefix}
}

type rpcRequest struct {
	Session string          `json:"session,omitempty"`
	Body    json.RawMessage `json:"body"`
}

type rpcError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	WaitSeconds int64  `json:"wait_seconds,omitempty"`
}

type rpcReply struct {
	OK    bool            `json:"ok"`
	Error *rpcError       `json:"error,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

func (c *client) call(ctx context.Context, op string, req, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("platform %s: marshal: %w", op, err)
	}

	data, err := json.Marshal(rpcRequest{Session: c.session, Body: body})
	if err != nil {
		return fmt.Errorf("platform %s: marshal: %w", op, err)
	}

	msg, err := c.nc.RequestWithContext(ctx, c.prefix+"."+op, data)
	if err != nil {
		return fmt.Errorf("platform %s: %w", op, err)
	}

	var reply rpcReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("platform %s: decode reply: %w", op, err)
	}

	if !reply.OK {
		return mapError(reply.Error)
	}

	if out != nil && len(reply.Body) > 0 {
		if err := json.Unmarshal(reply.Body, out); err != nil {
			return fmt.Errorf("platform %s: decode body: %w", op, err)
		}
	}
	return nil
}

// mapError turns the gateway's error envelope into the domain taxonomy.
func mapError(e *rpcError) error {
	if e == nil {
		return fmt.Errorf("platform: gateway refused without error detail")
	}

	switch e.Code {
	case "flood_wait":
		return &domain.ThrottleError{Wait: time.Duration(e.WaitSeconds) * time.Second}
	case "not_found":
		return domain.ErrNotFound
	case "not_participant":
		return domain.ErrNotParticipant
	case "stale_reference":
		return domain.ErrStaleReference
	case "invalid_credential":
		return domain.ErrInvalidCredential
	case "invite_expired":
		return domain.ErrInviteExpired
	default:
		return fmt.Errorf("platform: %s", e.Message)
	}
}

type itemRef struct {
	Chat string `json:"chat"`
	ID   int64  `json:"id"`
}

type destRef struct {
	Chat   string `json:"chat"`
	Thread int64  `json:"thread,omitempty"`
}

type wireItem struct {
	Chat      string              `json:"chat"`
	ID        int64               `json:"id"`
	Thread    int64               `json:"thread"`
	Kind      string              `json:"kind"`
	Size      int64               `json:"size"`
	FileName  string              `json:"file_name"`
	Caption   string              `json:"caption"`
	Text      string              `json:"text"`
	Entities  []domain.TextEntity `json:"entities,omitempty"`
	ThumbRef  string              `json:"thumb_ref"`
	Duration  int                 `json:"duration"`
	Width     int                 `json:"width"`
	Height    int                 `json:"height"`
	Protected bool                `json:"protected"`
}

func kindFromWire(s string) domain.MediaKind {
	switch s {
	case "text":
		return domain.KindText
	case "document":
		return domain.KindDocument
	case "video":
		return domain.KindVideo
	case "audio":
		return domain.KindAudio
	case "photo":
		return domain.KindPhoto
	case "voice":
		return domain.KindVoice
	case "animation":
		return domain.KindAnimation
	case "sticker":
		return domain.KindSticker
	default:
		return domain.KindNone
	}
}

func (c *client) FetchItem(ctx context.Context, chat domain.ChatID, id int64) (domain.Item, error) {
	var w wireItem
	err := c.call(ctx, "fetch_item", itemRef{Chat: string(chat), ID: id}, &w)
	if err != nil {
		return domain.Item{}, err
	}

	return domain.Item{
		Chat:      domain.ChatID(w.Chat),
		ID:        w.ID,
		Thread:    w.Thread,
		Kind:      kindFromWire(w.Kind),
		Size:      w.Size,
		FileName:  w.FileName,
		Caption:   w.Caption,
		Text:      w.Text,
		Entities:  w.Entities,
		ThumbRef:  w.ThumbRef,
		Duration:  w.Duration,
		Width:     w.Width,
		Height:    w.Height,
		Protected: w.Protected,
	}, nil
}

func (c *client) CopyItem(ctx context.Context, from domain.ChatID, id int64, to domain.Destination) error {
	req := struct {
		From itemRef `json:"from"`
		To   destRef `json:"to"`
	}{
		From: itemRef{Chat: string(from), ID: id},
		To:   destRef{Chat: string(to.Chat), Thread: to.Thread},
	}
	return c.call(ctx, "copy_item", req, nil)
}

func (c *client) SendText(ctx context.Context, to domain.Destination, text string, entities []domain.TextEntity) error {
	req := struct {
		To       destRef             `json:"to"`
		Text     string              `json:"text"`
		Entities []domain.TextEntity `json:"entities,omitempty"`
	}{
		To:       destRef{Chat: string(to.Chat), Thread: to.Thread},
		Text:     text,
		Entities: entities,
	}
	return c.call(ctx, "send_text", req, nil)
}

func (c *client) Download(ctx context.Context, item domain.Item, path string, p platform.Progress) (string, error) {
	transferID := uuid.NewString()

	unsub, err := c.watchProgress(transferID, p)
	if err != nil {
		return "", err
	}
	defer unsub()

	req := struct {
		Item       itemRef `json:"item"`
		Path       string  `json:"path"`
		TransferID string  `json:"transfer_id"`
	}{
		Item:       itemRef{Chat: string(item.Chat), ID: item.ID},
		Path:       path,
		TransferID: transferID,
	}

	var out struct {
		Path string `json:"path"`
	}
	if err := c.call(ctx, "download", req, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

func (c *client) DownloadThumbnail(ctx context.Context, item domain.Item, path string) (string, error) {
	req := struct {
		Item     itemRef `json:"item"`
		ThumbRef string  `json:"thumb_ref"`
		Path     string  `json:"path"`
	}{
		Item:     itemRef{Chat: string(item.Chat), ID: item.ID},
		ThumbRef: item.ThumbRef,
		Path:     path,
	}

	var out struct {
		Path string `json:"path"`
	}
	if err := c.call(ctx, "download_thumbnail", req, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

func (c *client) UploadFile(ctx context.Context, to domain.Destination, up platform.Upload, p platform.Progress) error {
	transferID := uuid.NewString()

	unsub, err := c.watchProgress(transferID, p)
	if err != nil {
		return err
	}
	defer unsub()

	req := struct {
		To         destRef `json:"to"`
		Kind       string  `json:"kind"`
		Path       string  `json:"path"`
		Caption    string  `json:"caption,omitempty"`
		ThumbPath  string  `json:"thumb_path,omitempty"`
		Duration   int     `json:"duration,omitempty"`
		Width      int     `json:"width,omitempty"`
		Height     int     `json:"height,omitempty"`
		TransferID string  `json:"transfer_id"`
	}{
		To:         destRef{Chat: string(to.Chat), Thread: to.Thread},
		Kind:       up.Kind.String(),
		Path:       up.Path,
		Caption:    up.Caption,
		ThumbPath:  up.ThumbPath,
		Duration:   up.Duration,
		Width:      up.Width,
		Height:     up.Height,
		TransferID: transferID,
	}
	return c.call(ctx, "upload", req, nil)
}

func (c *client) LastMessageID(ctx context.Context, chat domain.ChatID) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	req := struct {
		Chat string `json:"chat"`
	}{Chat: string(chat)}

	if err := c.call(ctx, "last_message_id", req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

type progressSample struct {
	Current int64 `json:"current"`
	Total   int64 `json:"total"`
}

// watchProgress forwards the gateway's progress events for one transfer to
// the progress port.
func (c *client) watchProgress(transferID string, p platform.Progress) (func(), error) {
	if p == nil {
		return func() {}, nil
	}

	subject := c.prefix + ".progress." + transferID
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		var s progressSample
		if err := json.Unmarshal(m.Data, &s); err != nil {
			slog.Warn("platform progress decode", slog.String("error", err.Error()))
			return
		}
		p.Sample(s.Current, s.Total)
	})
	if err != nil {
		return nil, fmt.Errorf("platform progress subscribe: %w", err)
	}

	return func() { _ = sub.Unsubscribe() }, nil
}
