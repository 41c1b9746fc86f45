package middleware

import (
	"context"
	"net/http"
	"strings"
)

const (
	// HeaderBidderID carries the bidder identity resolved by the auth gateway.
	HeaderBidderID       = "X-Bidder-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderAdminToken     = "X-Admin-Token"
)

type contextKey string

const bidderKey contextKey = "bidder_id"

// BidderIdentity copies the gateway's bidder header into the request
// context. Requests without it pass through anonymously.
func BidderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(HeaderBidderID)); id != "" {
			r = r.WithContext(WithBidderID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func WithBidderID(ctx context.Context, bidderID string) context.Context {
	return context.WithValue(ctx, bidderKey, bidderID)
}

// BidderID returns the identity set by BidderIdentity, or "".
func BidderID(ctx context.Context) string {
	id, _ := ctx.Value(bidderKey).(string)
	return id
}
