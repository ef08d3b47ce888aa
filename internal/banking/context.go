package banking

import (
	"context"

	"github.com/bankflowhq/workflow-engine/internal/session"
)

type sessionKey struct{}

// WithSession attaches sess to ctx so HIL-gated nodes — which only receive
// (ctx, *wfstate.State) through graph.NodeFunc — can reach the session
// record the hil.Gate needs. Set by the facade before every engine.Run or
// engine.Resume call.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the session attached by WithSession, or nil.
func SessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}
