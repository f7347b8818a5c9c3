// Package platform declares the ports this service consumes from the remote
// messaging platform. The wire protocol lives behind these interfaces; errors
// surface as the domain taxonomy (domain.ThrottleError, domain.ErrNotFound,
// domain.ErrStaleReference, domain.ErrNotParticipant,
// domain.ErrInvalidCredential).
package platform

import (
	"context"

	"github.com/you-humble/chatmover/internal/domain"
)

// Progress receives byte-level samples during a long transfer.
type Progress interface {
	Sample(current, total int64)
}

// Upload is one classified outbound file transfer.
type Upload struct {
	Kind      domain.MediaKind
	Path      string
	Caption   string
	ThumbPath string
	Duration  int
	Width     int
	Height    int
}

// Client is a connected identity able to move content. The bot identity and
// user sessions both satisfy it.
type Client interface {
	// FetchItem reads one message. Returns domain.ErrNotFound for deleted or
	// empty messages.
	FetchItem(ctx context.Context, chat domain.ChatID, id int64) (domain.Item, error)

	// CopyItem asks the platform to copy the item server-side, with no local
	// transfer.
	CopyItem(ctx context.Context, from domain.ChatID, id int64, to domain.Destination) error

	// SendText re-emits a text item with its formatting entities.
	SendText(ctx context.Context, to domain.Destination, text string, entities []domain.TextEntity) error

	// Download fetches the item payload into path, sampling progress.
	// Returns the local path written.
	Download(ctx context.Context, item domain.Item, path string, p Progress) (string, error)

	// DownloadThumbnail fetches the item's thumbnail into path. Best-effort
	// for callers; a failure must not affect the item outcome.
	DownloadThumbnail(ctx context.Context, item domain.Item, path string) (string, error)

	// UploadFile sends a local file as the classified media kind.
	UploadFile(ctx context.Context, to domain.Destination, up Upload, p Progress) error

	// LastMessageID returns the newest message id of a chat.
	LastMessageID(ctx context.Context, chat domain.ChatID) (int64, error)
}

// Session is a transfer-capable authenticated user identity.
type Session interface {
	Client

	// JoinByInvite joins a chat through an invite link.
	JoinByInvite(ctx context.Context, link string) (domain.ChatInfo, error)

	// ResolveInvite resolves a link for an already-joined chat.
	ResolveInvite(ctx context.Context, link string) (domain.ChatInfo, error)

	// Premium reports whether the session account is premium-tier.
	Premium(ctx context.Context) (bool, error)

	Close() error
}

// Connector dials a session from saved credentials. Dead credentials surface
// as domain.ErrInvalidCredential.
type Connector interface {
	Connect(ctx context.Context, creds domain.Credentials) (Session, error)
}
