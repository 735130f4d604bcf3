package sender

import (
	"context"
	"fmt"
	"io"

	"botkit/core/telegram/format"
	"botkit/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// Recorder persists delivery events; the bot event log implements it.
type Recorder interface {
	SentMessage(ctx context.Context, userID int64, text string) error
	SentDocument(ctx context.Context, userID int64, filename string) error
}

// MessageOptions shape an outgoing text message. A message without a
// keyboard hides any previously shown one.
type MessageOptions struct {
	Keyboard [][]string
	Resize   bool
	OneTime  bool
	// Markdown selects format.MarkdownV1 or format.MarkdownV2; zero sends
	// plain text. The text is escaped before sending.
	Markdown int
}

// DefaultMessageOptions returns the options used for plain replies.
func DefaultMessageOptions() MessageOptions {
	return MessageOptions{Resize: true, OneTime: true}
}

// Sender delivers messages to users and records each delivery.
// With a dispatcher attached, sends are queued and executed by its
// workers; without one they run inline.
type Sender struct {
	bot      *tele.Bot
	disp     *Dispatcher
	recorder Recorder
}

// New builds a Sender. Both disp and recorder may be nil.
func New(bot *tele.Bot, disp *Dispatcher, recorder Recorder) *Sender {
	return &Sender{bot: bot, disp: disp, recorder: recorder}
}

// SendText delivers a text message to the user.
func (s *Sender) SendText(ctx context.Context, userID int64, text string, opts *MessageOptions) error {
	if s.bot == nil {
		return fmt.Errorf("sender: bot not initialized")
	}
	options := MessageOptions{}
	if opts != nil {
		options = *opts
	}

	body := text
	sendOpts := &tele.SendOptions{}
	if options.Markdown != 0 {
		escaped, err := format.EscapeMarkdown(text, options.Markdown)
		if err != nil {
			return fmt.Errorf("sender: %w", err)
		}
		body = escaped
		if options.Markdown == format.MarkdownV2 {
			sendOpts.ParseMode = tele.ModeMarkdownV2
		} else {
			sendOpts.ParseMode = tele.ModeMarkdown
		}
	}
	if len(options.Keyboard) > 0 {
		sendOpts.ReplyMarkup = keyboard.ReplyButtons(options.Keyboard, keyboard.ReplyOptions{
			Resize:  options.Resize,
			OneTime: options.OneTime,
		})
	} else {
		sendOpts.ReplyMarkup = keyboard.RemoveKeyboard()
	}

	recipient := &tele.User{ID: userID}
	return s.run(ctx, "send_text", func() error {
		if _, err := s.bot.Send(recipient, body, sendOpts); err != nil {
			return err
		}
		if s.recorder != nil {
			return s.recorder.SentMessage(ctx, userID, text)
		}
		return nil
	})
}

// SendDocument delivers a file to the user.
func (s *Sender) SendDocument(ctx context.Context, userID int64, filename string, content io.Reader, caption string) error {
	if s.bot == nil {
		return fmt.Errorf("sender: bot not initialized")
	}
	doc := &tele.Document{
		File:     tele.FromReader(content),
		FileName: filename,
		Caption:  caption,
	}
	recipient := &tele.User{ID: userID}
	// Document uploads stream the reader once, so retries are disabled by
	// running inline.
	if _, err := s.bot.Send(recipient, doc); err != nil {
		return fmt.Errorf("sender: send document: %w", err)
	}
	if s.recorder != nil {
		return s.recorder.SentDocument(ctx, userID, filename)
	}
	return nil
}

func (s *Sender) run(ctx context.Context, action string, fn func() error) error {
	if s.disp == nil {
		return fn()
	}
	return s.disp.Enqueue(ctx, action, fn)
}
