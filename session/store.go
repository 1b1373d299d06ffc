// Package session persists conversation transcripts keyed by session ID.
// A transcript is an ordered list of core.Content turns; the loop appends
// completed turns and replays history on the next prompt in the same
// session.
package session

import (
	"context"

	"github.com/AnswerDotAI/ai-jup/core"
)

// Store is the transcript persistence interface.
type Store interface {
	// Append adds completed turns to the session's transcript in order.
	Append(ctx context.Context, sessionID string, turns ...core.Content) error

	// History returns the session's transcript, oldest first. An unknown
	// session yields an empty history, not an error.
	History(ctx context.Context, sessionID string) ([]core.Content, error)

	// Clear removes the session's transcript.
	Clear(ctx context.Context, sessionID string) error
}
