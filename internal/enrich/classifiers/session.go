package classifiers

import (
	"strconv"
	"time"

	"github.com/smartpixl/core/internal/enrich"
	"github.com/smartpixl/core/internal/fingerprint"
)

// Session assigns a per-fingerprint session id and hit sequence number,
// minting a new session whenever the fingerprint has been inactive for
// longer than the tracker's inactivity timeout (10 minutes by default).
type Session struct {
	tracker *fingerprint.Tracker
}

func NewSession(t *fingerprint.Tracker) *Session {
	return &Session{tracker: t}
}

func (c *Session) Name() string { return "session" }

func (c *Session) Classify(snap *enrich.Snapshot, ctx *enrich.Context) error {
	if snap.DeviceFingerprint == "" {
		return nil
	}
	id, hitSeq, isNew := c.tracker.Session(snap.DeviceFingerprint, time.Now())
	ctx.Append("sessionId", id)
	ctx.Append("sessionHit", strconv.Itoa(hitSeq))
	if isNew {
		ctx.Append("sessionNew", "true")
	}
	return nil
}
