package chat

import (
	"testing"
	"time"

	"github.com/dkeye/Classroom/internal/core"
	"github.com/dkeye/Classroom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	payload, err := Encode("Ana", "hello", at)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"chat","from":"Ana","text":"hello","timestamp":1700000000123}`, string(payload))

	env, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "Ana", env.From)
	assert.Equal(t, "hello", env.Text)
	assert.Equal(t, at.UnixMilli(), env.Timestamp)
}

func TestDecodeLegacy(t *testing.T) {
	env, err := Decode([]byte(`{"t":"chat","from":"Ben","text":"hi","ts":42}`))
	require.NoError(t, err)
	assert.Equal(t, "Ben", env.From)
	assert.Equal(t, int64(42), env.Timestamp)
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{`hello`, `{"kind":"reaction"}`, `[1,2]`, ``} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, core.ErrMalformedPayload, raw)
	}
}

func TestTextReplacesInvalidUTF8(t *testing.T) {
	assert.Equal(t, "a�b", Text([]byte{'a', 0xff, 'b'}))
	assert.Equal(t, "plain", Text([]byte("plain")))
}

func TestLog(t *testing.T) {
	l := NewLog()
	fixed := time.Unix(100, 0)
	l.now = func() time.Time { return fixed }

	assert.Empty(t, l.Messages())
	m := l.Append(domain.ChatMessage{From: "Ana", Text: "hi", Mine: true})
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, fixed, m.At)

	s := l.System("Ben joined")
	assert.True(t, s.System)
	assert.Equal(t, domain.SystemSender, s.From)
	assert.Equal(t, 2, l.Len())

	msgs := l.Messages()
	msgs[0].Text = "changed"
	assert.Equal(t, "hi", l.Messages()[0].Text)

	l.Reset()
	assert.Equal(t, 0, l.Len())
}
