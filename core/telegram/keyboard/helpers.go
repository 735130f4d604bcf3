// Package keyboard builds telebot reply markups from plain label rows, the
// shape the locale storage produces.
package keyboard

import tele "gopkg.in/telebot.v4"

// ReplyOptions tune the reply keyboard markup flags.
type ReplyOptions struct {
	Resize  bool
	OneTime bool
}

// ForceReply returns a markup that forces the user to reply.
func ForceReply() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{ForceReply: true}
}

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a reply keyboard from rows of button labels.
func ReplyButtons(rows [][]string, opts ReplyOptions) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{
		ResizeKeyboard:  opts.Resize,
		OneTimeKeyboard: opts.OneTime,
	}
	var keyboard []tele.Row
	for _, row := range rows {
		var buttons []tele.Btn
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// ChunkLabels splits a flat list of labels into rows with up to n per row.
func ChunkLabels(labels []string, n int) [][]string {
	if n <= 1 {
		out := make([][]string, 0, len(labels))
		for _, label := range labels {
			out = append(out, []string{label})
		}
		return out
	}
	var rows [][]string
	for i := 0; i < len(labels); i += n {
		end := i + n
		if end > len(labels) {
			end = len(labels)
		}
		rows = append(rows, labels[i:end])
	}
	return rows
}
