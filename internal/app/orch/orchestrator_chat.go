package orch

import (
	"context"
	"strings"

	"github.com/dkeye/Classroom/internal/app/chat"
	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/rs/zerolog/log"
)

// SendChat sends text reliably and echoes it locally right away. Blank text
// or a missing session make it a no-op. A delivery error is returned but the
// echo stays.
func (o *Orchestrator) SendChat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	o.mu.Lock()
	sess := o.session
	if sess == nil || sess.State != core.StateConnected {
		o.mu.Unlock()
		return nil
	}
	now := o.now()
	payload, err := chat.Encode(sess.Name, text, now)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	o.chat.Append(domain.ChatMessage{From: sess.Name, Text: text, At: now, Mine: true})
	tr := sess.Transport
	o.mu.Unlock()
	o.notify()

	if err := tr.PublishData(ctx, payload, true); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Msg("chat send failed")
		return &core.TransportError{Op: "publish data", Err: err}
	}
	return nil
}
