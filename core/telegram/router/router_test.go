package router

import (
	"context"
	"errors"
	"testing"

	"botkit/core/storage"

	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func nop(_ context.Context, _ Inbound) error { return nil }

// fakeTele implements the tele.Context surface dispatch touches; all other
// methods panic through the embedded nil interface.
type fakeTele struct {
	tele.Context
	sender *tele.User
	chat   *tele.Chat
	text   string
	msg    *tele.Message
	store  map[string]any
}

func (f *fakeTele) Sender() *tele.User     { return f.sender }
func (f *fakeTele) Chat() *tele.Chat       { return f.chat }
func (f *fakeTele) Update() tele.Update    { return tele.Update{ID: 7} }
func (f *fakeTele) Message() *tele.Message { return f.msg }
func (f *fakeTele) Text() string           { return f.text }
func (f *fakeTele) Get(key string) any     { return f.store[key] }
func (f *fakeTele) Set(key string, v any) {
	if f.store == nil {
		f.store = make(map[string]any)
	}
	f.store[key] = v
}

type fakeAccess struct {
	ensured []int64
	roles   []string
	state   string
}

func (a *fakeAccess) EnsureUser(_ context.Context, userID int64, _, _, _ string) error {
	a.ensured = append(a.ensured, userID)
	return nil
}

func (a *fakeAccess) UserRoles(_ context.Context, _ int64) ([]string, error) {
	return a.roles, nil
}

func (a *fakeAccess) UserState(_ context.Context, _ int64) (string, storage.Document, error) {
	return a.state, storage.Document{}, nil
}

type fakeRecorder struct {
	commands  []string
	messages  []string
	documents []string
}

func (r *fakeRecorder) ReceivedCommand(_ context.Context, _ int64, command string) error {
	r.commands = append(r.commands, command)
	return nil
}

func (r *fakeRecorder) ReceivedMessage(_ context.Context, _ int64, text string) error {
	r.messages = append(r.messages, text)
	return nil
}

func (r *fakeRecorder) ReceivedDocument(_ context.Context, _ int64, filename string) error {
	r.documents = append(r.documents, filename)
	return nil
}

func TestAccessible(t *testing.T) {
	req := require.New(t)

	// No filters: everyone passes.
	req.True(accessible(nil, nil, "free", []string{"user"}))

	// State filter.
	req.True(accessible([]string{"ordering"}, nil, "ordering", nil))
	req.False(accessible([]string{"ordering"}, nil, "free", nil))

	// Role filter: one held role is enough.
	req.True(accessible(nil, []string{"admin", "owner"}, "free", []string{"user", "admin"}))
	req.False(accessible(nil, []string{"admin"}, "free", []string{"user"}))

	// Both filters must pass.
	req.True(accessible([]string{"free"}, []string{"user"}, "free", []string{"user"}))
	req.False(accessible([]string{"free"}, []string{"admin"}, "free", []string{"user"}))
	req.False(accessible([]string{"ordering"}, []string{"user"}, "free", []string{"user"}))
}

func TestHandleCommandValidation(t *testing.T) {
	req := require.New(t)
	r := New(nil, nil)

	req.ErrorIs(r.HandleCommand(CommandRoute{Command: "/start"}), ErrNilHandler)
	req.ErrorIs(r.HandleCommand(CommandRoute{Handler: nop}), ErrEmptyCommand)

	req.NoError(r.HandleCommand(CommandRoute{Command: "/start", Handler: nop}))
	req.Equal("start", r.commands[0].Command)
}

func TestHandleMessageCompilesFullMatch(t *testing.T) {
	req := require.New(t)
	r := New(nil, nil)

	req.NoError(r.HandleMessage(MessageRoute{Pattern: `\d+`, Handler: nop}))
	re := r.messages[0].re
	req.NotNil(re.FindStringSubmatch("123"))
	req.Nil(re.FindStringSubmatch("order 123"))

	req.Error(r.HandleMessage(MessageRoute{Pattern: `(`, Handler: nop}))
	req.ErrorIs(r.HandleMessage(MessageRoute{Pattern: `x`}), ErrNilHandler)
}

func TestMatchesDocument(t *testing.T) {
	req := require.New(t)

	open := DocumentRoute{}
	req.True(matchesDocument(open, "report.csv", "text/csv"))

	byName := DocumentRoute{FileNames: []string{"report.csv"}}
	req.True(matchesDocument(byName, "report.csv", "text/csv"))
	req.False(matchesDocument(byName, "other.csv", "text/csv"))

	byMIME := DocumentRoute{MIMETypes: []string{"text/csv", "text/plain"}}
	req.True(matchesDocument(byMIME, "anything.txt", "text/plain"))
	req.False(matchesDocument(byMIME, "anything.pdf", "application/pdf"))

	both := DocumentRoute{FileNames: []string{"report.csv"}, MIMETypes: []string{"text/csv"}}
	req.True(matchesDocument(both, "report.csv", "text/csv"))
	req.False(matchesDocument(both, "report.csv", "application/pdf"))
}

func TestHandleImageValidation(t *testing.T) {
	req := require.New(t)
	r := New(nil, nil)

	req.ErrorIs(r.HandleImage(ImageRoute{}), ErrNilHandler)
	req.NoError(r.HandleImage(ImageRoute{Handler: nop}))
}

func TestDispatchCommandServesEveryMatchingRoute(t *testing.T) {
	req := require.New(t)
	access := &fakeAccess{state: "free", roles: []string{"user"}}
	rec := &fakeRecorder{}
	r := New(access, rec)

	var served []string
	mark := func(name string) HandlerFunc {
		return func(_ context.Context, _ Inbound) error {
			served = append(served, name)
			return nil
		}
	}
	req.NoError(r.HandleCommand(CommandRoute{Command: "start", Handler: mark("open")}))
	req.NoError(r.HandleCommand(CommandRoute{Command: "start", Roles: []string{"admin"}, Handler: mark("gated")}))
	var args []string
	req.NoError(r.HandleCommand(CommandRoute{Command: "start", Handler: func(_ context.Context, in Inbound) error {
		args = in.Args
		return mark("second")(nil, in)
	}}))

	c := &fakeTele{sender: &tele.User{ID: 42, Username: "alice"}, chat: &tele.Chat{ID: 42}, text: "/start now"}
	req.NoError(r.TextHandler()(c))

	req.Equal([]string{"open", "second"}, served)
	req.Equal([]string{"now"}, args)
	req.Equal([]string{"start"}, rec.commands)
	req.Equal([]int64{42}, access.ensured)
}

func TestDispatchMessageServesEveryMatchingRoute(t *testing.T) {
	req := require.New(t)
	access := &fakeAccess{state: "free"}
	rec := &fakeRecorder{}
	r := New(access, rec)

	var served []string
	var submatch string
	req.NoError(r.HandleMessage(MessageRoute{Pattern: `order \d+`, Handler: func(_ context.Context, _ Inbound) error {
		served = append(served, "plain")
		return nil
	}}))
	req.NoError(r.HandleMessage(MessageRoute{Pattern: `order (\d+)`, Handler: func(_ context.Context, in Inbound) error {
		served = append(served, "capture")
		submatch = in.Matches[1]
		return nil
	}}))
	req.NoError(r.HandleMessage(MessageRoute{Pattern: `cancel`, Handler: func(_ context.Context, _ Inbound) error {
		served = append(served, "other")
		return nil
	}}))

	c := &fakeTele{sender: &tele.User{ID: 5}, text: "order 15"}
	req.NoError(r.TextHandler()(c))

	req.Equal([]string{"plain", "capture"}, served)
	req.Equal("15", submatch)
	req.Equal([]string{"order 15"}, rec.messages)
}

func TestDispatchCommandReportsHandlerError(t *testing.T) {
	req := require.New(t)
	r := New(&fakeAccess{state: "free"}, nil)

	boom := errors.New("boom")
	req.NoError(r.HandleCommand(CommandRoute{Command: "fail", Handler: func(_ context.Context, _ Inbound) error {
		return boom
	}}))

	c := &fakeTele{sender: &tele.User{ID: 1}, text: "/fail"}
	req.ErrorIs(r.TextHandler()(c), boom)
}

func TestDocumentHandlerServesMatchingRoutes(t *testing.T) {
	req := require.New(t)
	access := &fakeAccess{state: "free"}
	rec := &fakeRecorder{}
	r := New(access, rec)

	var served []string
	mark := func(name string) HandlerFunc {
		return func(_ context.Context, _ Inbound) error {
			served = append(served, name)
			return nil
		}
	}
	req.NoError(r.HandleDocument(DocumentRoute{FileNames: []string{"report.csv"}, Handler: mark("named")}))
	req.NoError(r.HandleDocument(DocumentRoute{MIMETypes: []string{"application/pdf"}, Handler: mark("pdf")}))
	req.NoError(r.HandleDocument(DocumentRoute{Handler: mark("any")}))

	c := &fakeTele{
		sender: &tele.User{ID: 1},
		msg: &tele.Message{
			Document: &tele.Document{FileName: "report.csv", MIME: "text/csv"},
			Caption:  "weekly",
		},
	}
	req.NoError(r.DocumentHandler()(c))

	req.Equal([]string{"named", "any"}, served)
	req.Equal([]string{"report.csv"}, rec.documents)
}

func TestImageHandlerRespectsAccessFilters(t *testing.T) {
	req := require.New(t)
	access := &fakeAccess{state: "free", roles: []string{"user"}}
	r := New(access, nil)

	var served []string
	mark := func(name string) HandlerFunc {
		return func(_ context.Context, in Inbound) error {
			if in.Photo == nil {
				return errors.New("missing photo")
			}
			served = append(served, name)
			return nil
		}
	}
	req.NoError(r.HandleImage(ImageRoute{Handler: mark("open")}))
	req.NoError(r.HandleImage(ImageRoute{Roles: []string{"admin"}, Handler: mark("gated")}))
	req.NoError(r.HandleImage(ImageRoute{States: []string{"free"}, Handler: mark("stated")}))

	c := &fakeTele{sender: &tele.User{ID: 9}, msg: &tele.Message{Photo: &tele.Photo{}}}
	req.NoError(r.ImageHandler()(c))

	req.Equal([]string{"open", "stated"}, served)
}

func TestHandlersDropSenderlessUpdates(t *testing.T) {
	req := require.New(t)
	access := &fakeAccess{}
	r := New(access, nil)

	called := false
	req.NoError(r.HandleMessage(MessageRoute{Pattern: `.*`, Handler: func(_ context.Context, _ Inbound) error {
		called = true
		return nil
	}}))

	req.NoError(r.TextHandler()(&fakeTele{text: "hello"}))
	req.NoError(r.DocumentHandler()(&fakeTele{}))
	req.NoError(r.ImageHandler()(&fakeTele{}))

	req.False(called)
	req.Empty(access.ensured)
}
