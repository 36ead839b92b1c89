package observability

import (
	"context"
	"strings"
	"sync"
	"unicode"
)

const tagsContextKey contextKey = "github.com/storefront/api/internal/platform/observability/tags"

// requestTags carries storefront identifiers learned while the request is handled. Auth and handlers
// see derived contexts, so they write through this shared pointer and the request logger reads it once
// the handler returns.
type requestTags struct {
	mu        sync.Mutex
	actorID   string
	actorRole string
	orderID   string
}

func withRequestTags(ctx context.Context) (context.Context, *requestTags) {
	if tags, ok := ctx.Value(tagsContextKey).(*requestTags); ok {
		return ctx, tags
	}
	tags := &requestTags{}
	return context.WithValue(ctx, tagsContextKey, tags), tags
}

// TagActor records the authenticated caller on the request log line and server span.
func TagActor(ctx context.Context, id, role string) {
	tags, ok := ctx.Value(tagsContextKey).(*requestTags)
	if !ok {
		return
	}
	tags.mu.Lock()
	tags.actorID = scrub(id, 64)
	tags.actorRole = scrub(role, 16)
	tags.mu.Unlock()
}

// TagOrder records the order a request created or acted on. Routes with an {orderID} parameter are
// tagged automatically.
func TagOrder(ctx context.Context, orderID string) {
	tags, ok := ctx.Value(tagsContextKey).(*requestTags)
	if !ok {
		return
	}
	tags.mu.Lock()
	tags.orderID = scrub(orderID, 64)
	tags.mu.Unlock()
}

func (t *requestTags) snapshot() (actorID, actorRole, orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actorID, t.actorRole, t.orderID
}

// scrub strips control characters and caps length so client-supplied values cannot forge log lines.
func scrub(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(value))
	if runes := []rune(value); len(runes) > limit {
		value = string(runes[:limit])
	}
	return value
}
