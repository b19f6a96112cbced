package bluesky

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/labstack/gommon/log"
)

const DefaultPDSHost = "https://bsky.social"

type Credentials struct {
	Identifier string
	Password   string
}

type Client struct {
	xrpc *xrpc.Client
}

func ClientFromCredentials(ctx context.Context, host string, creds *Credentials) (*Client, error) {
	auth, err := atproto.ServerCreateSession(ctx, &xrpc.Client{Host: host}, &atproto.ServerCreateSession_Input{
		Identifier: creds.Identifier,
		Password:   creds.Password,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	xrpcClient := &xrpc.Client{
		Host: host,
		Auth: &xrpc.AuthInfo{
			AccessJwt:  auth.AccessJwt,
			RefreshJwt: auth.RefreshJwt,
			Handle:     auth.Handle,
			Did:        auth.Did,
		},
		Client: http.DefaultClient,
	}

	return &Client{xrpc: xrpcClient}, nil
}

// Announce posts a short text message to the authenticated account's
// repository. Implements the dispatch.Announcer interface.
func (c *Client) Announce(ctx context.Context, text string) error {
	_, err := atproto.RepoCreateRecord(ctx, c.xrpc, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.xrpc.Auth.Did,
		Record: &lexutil.LexiconTypeDecoder{
			Val: &bsky.FeedPost{
				Text:      text,
				CreatedAt: FormatTime(time.Now().UTC()),
			},
		},
	})
	if err != nil {
		// Display the entire response error so we can see what went wrong
		log.Errorf("failed to create record: %s", err)
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// FormatTime formats a time.Time into the format expected by AT Protocol
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000Z")
}
