package session

import (
	"errors"
	"fmt"
	"io"
)

// Fixed Japanese prompts spoken to the caller. These are TTS input, so they
// end with terminal punctuation.
const (
	couldNotHearMessage = "申し訳ございません、聞き取れませんでした。もう一度お願いします。"
	apologyMessage      = "申し訳ございません、システムエラーが発生しました。しばらくお待ちください。"
	placeholderFormat   = "あなたのメッセージ「%s」を受け取りました。これはプレースホルダーのレスポンスです。"
)

// generate runs one reply: it streams tokens from the provider, cuts them
// into sentence fragments, and forwards each fragment to the writer. The
// epoch captured at start is re-checked on every token; a mismatch means the
// run was superseded by an interrupt or teardown and must stop emitting
// immediately, with no terminal fragment. Text already streamed still becomes
// the assistant turn so the next request sees what the caller heard.
func (s *Session) generate(epoch int64, userText string) {
	if s.provider == nil {
		// No provider configured: echo a canned reply so the call flow stays
		// exercisable end to end.
		reply := fmt.Sprintf(placeholderFormat, userText)
		if s.epoch.Load() != epoch {
			return
		}
		s.recordAssistant(reply)
		s.sendToken(reply, true)
		return
	}

	stream, err := s.provider.StreamChat(s.ctx, s.history.snapshot())
	if err != nil {
		s.logger.Error("llm request failed", "error", err)
		if s.epoch.Load() != epoch {
			return
		}
		s.sendToken(apologyMessage, true)
		return
	}
	defer stream.Close()

	seg := NewSegmenter()
	for {
		token, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if s.epoch.Load() != epoch {
				s.recordAssistant(seg.Full())
				return
			}
			s.logger.Error("llm stream failed", "error", err)
			s.sendToken(apologyMessage, true)
			return
		}
		if s.epoch.Load() != epoch {
			s.recordAssistant(seg.Full())
			return
		}
		for _, sentence := range seg.Push(token) {
			s.sendToken(sentence, false)
		}
	}

	if s.epoch.Load() != epoch {
		s.recordAssistant(seg.Full())
		return
	}
	// The terminal fragment carries whatever remains after the last sentence
	// mark; an empty token with last=true is valid and closes the reply.
	s.sendToken(seg.Flush(), true)
	s.recordAssistant(seg.Full())
}

// recordAssistant appends a non-empty reply to the history and applies the
// truncation window.
func (s *Session) recordAssistant(text string) {
	if text == "" {
		return
	}
	s.history.appendAssistant(text)
	s.history.compact(s.cfg.MaxHistoryTurns, s.cfg.HistoryKeepRecent)
}
