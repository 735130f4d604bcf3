// Package router dispatches incoming Telegram updates to registered
// handlers. A route declares what it matches (a command, a message pattern,
// a document shape, or any photo) and who may trigger it (allowed states
// and roles); empty filters match everything. Every matching accessible
// route is invoked, in registration order.
package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"botkit/core/logger"
	"botkit/core/storage"
	tghelpers "botkit/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrEmptyCommand reports a command route without a command.
	ErrEmptyCommand = errors.New("router: empty command")
	// ErrNilHandler reports a route without a handler.
	ErrNilHandler = errors.New("router: nil handler")

	errNoSender = errors.New("router: update without sender")
)

// Access resolves the identity of the sender: it initializes unknown users
// and exposes their roles and conversation state.
type Access interface {
	EnsureUser(ctx context.Context, userID int64, username, firstName, lastName string) error
	UserRoles(ctx context.Context, userID int64) ([]string, error)
	UserState(ctx context.Context, userID int64) (string, storage.Document, error)
}

// Recorder persists receipt events; the bot event log implements it.
type Recorder interface {
	ReceivedCommand(ctx context.Context, userID int64, command string) error
	ReceivedMessage(ctx context.Context, userID int64, text string) error
	ReceivedDocument(ctx context.Context, userID int64, filename string) error
}

// Inbound carries the matched update into a handler.
type Inbound struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
	LastName  string

	Roles       []string
	State       string
	StateParams storage.Document

	// Text is the message text; for command routes it is the full command
	// line, with Args holding everything after the command.
	Text string
	Args []string

	// Matches holds regexp submatches for message routes.
	Matches []string

	// FileName and MIME are set for document routes; Photo is set for image
	// routes. Tele exposes the raw telebot context for downloads and direct
	// replies.
	FileName string
	MIME     string
	Photo    *tele.Photo
	Tele     tele.Context
}

// HandlerFunc processes a matched update.
type HandlerFunc func(ctx context.Context, in Inbound) error

// CommandRoute matches a leading /command token.
type CommandRoute struct {
	Command string
	States  []string
	Roles   []string
	Handler HandlerFunc
}

// MessageRoute matches the whole message text against a regexp.
type MessageRoute struct {
	Pattern string
	States  []string
	Roles   []string
	Handler HandlerFunc
}

// DocumentRoute matches incoming documents by filename and MIME type.
// Empty lists match any document.
type DocumentRoute struct {
	FileNames []string
	MIMETypes []string
	States    []string
	Roles     []string
	Handler   HandlerFunc
}

// ImageRoute matches any incoming photo; states and roles are the only
// filters, since Telegram photos carry no filename.
type ImageRoute struct {
	States  []string
	Roles   []string
	Handler HandlerFunc
}

type messageRoute struct {
	MessageRoute
	re *regexp.Regexp
}

// Router dispatches updates to every matching accessible route, in
// registration order.
type Router struct {
	access   Access
	recorder Recorder

	mu        sync.RWMutex
	commands  []CommandRoute
	messages  []messageRoute
	documents []DocumentRoute
	images    []ImageRoute
}

// New builds a Router. The recorder may be nil.
func New(access Access, recorder Recorder) *Router {
	return &Router{access: access, recorder: recorder}
}

// HandleCommand registers a command route. The leading slash is optional.
func (r *Router) HandleCommand(route CommandRoute) error {
	route.Command = strings.TrimPrefix(strings.TrimSpace(route.Command), "/")
	if route.Command == "" {
		return ErrEmptyCommand
	}
	if route.Handler == nil {
		return fmt.Errorf("%w: /%s", ErrNilHandler, route.Command)
	}
	r.mu.Lock()
	r.commands = append(r.commands, route)
	r.mu.Unlock()
	return nil
}

// HandleMessage registers a message route. The pattern must match the whole
// message text.
func (r *Router) HandleMessage(route MessageRoute) error {
	if route.Handler == nil {
		return fmt.Errorf("%w: %q", ErrNilHandler, route.Pattern)
	}
	re, err := regexp.Compile(`\A(?:` + route.Pattern + `)\z`)
	if err != nil {
		return fmt.Errorf("router: pattern %q: %w", route.Pattern, err)
	}
	r.mu.Lock()
	r.messages = append(r.messages, messageRoute{MessageRoute: route, re: re})
	r.mu.Unlock()
	return nil
}

// HandleDocument registers a document route.
func (r *Router) HandleDocument(route DocumentRoute) error {
	if route.Handler == nil {
		return ErrNilHandler
	}
	r.mu.Lock()
	r.documents = append(r.documents, route)
	r.mu.Unlock()
	return nil
}

// HandleImage registers an image route.
func (r *Router) HandleImage(route ImageRoute) error {
	if route.Handler == nil {
		return ErrNilHandler
	}
	r.mu.Lock()
	r.images = append(r.images, route)
	r.mu.Unlock()
	return nil
}

// TextHandler returns the telebot handler for text updates.
func (r *Router) TextHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		return r.dispatchText(c)
	}
}

// DocumentHandler returns the telebot handler for document updates.
func (r *Router) DocumentHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		in, ctx, err := r.resolve(c)
		if err != nil {
			return dropNoSender(err)
		}
		msg := c.Message()
		if msg == nil || msg.Document == nil {
			return nil
		}
		in.FileName = msg.Document.FileName
		in.MIME = msg.Document.MIME
		in.Text = msg.Caption
		return r.dispatchDocument(ctx, c, in)
	}
}

// ImageHandler returns the telebot handler for photo updates.
func (r *Router) ImageHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		in, ctx, err := r.resolve(c)
		if err != nil {
			return dropNoSender(err)
		}
		msg := c.Message()
		if msg == nil || msg.Photo == nil {
			return nil
		}
		in.Photo = msg.Photo
		in.Text = msg.Caption
		return r.dispatchImage(ctx, c, in)
	}
}

func (r *Router) dispatchText(c tele.Context) error {
	in, ctx, err := r.resolve(c)
	if err != nil {
		return dropNoSender(err)
	}

	text := c.Text()
	in.Text = text

	if strings.HasPrefix(text, "/") {
		return r.dispatchCommand(ctx, c, in)
	}
	return r.dispatchMessage(ctx, c, in)
}

func (r *Router) dispatchCommand(ctx context.Context, c tele.Context, in Inbound) error {
	parts := strings.Fields(in.Text)
	command := strings.TrimPrefix(parts[0], "/")
	// Commands addressed as /cmd@bot_name arrive in group chats.
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	in.Args = parts[1:]

	r.mu.RLock()
	routes := r.commands
	r.mu.RUnlock()

	var errs []error
	served := false
	for _, route := range routes {
		if route.Command != command {
			continue
		}
		if !accessible(route.States, route.Roles, in.State, in.Roles) {
			continue
		}
		if !served {
			served = true
			if r.recorder != nil {
				_ = r.recorder.ReceivedCommand(ctx, in.UserID, command)
			}
		}
		errs = append(errs, r.invoke(ctx, c, "cmd_"+command, route.Handler, in))
	}
	if served {
		return errors.Join(errs...)
	}

	r.logSkip(ctx, "command", command)
	return nil
}

func (r *Router) dispatchMessage(ctx context.Context, c tele.Context, in Inbound) error {
	r.mu.RLock()
	routes := r.messages
	r.mu.RUnlock()

	var errs []error
	served := false
	for _, route := range routes {
		matches := route.re.FindStringSubmatch(in.Text)
		if matches == nil {
			continue
		}
		if !accessible(route.States, route.Roles, in.State, in.Roles) {
			continue
		}
		if !served {
			served = true
			if r.recorder != nil {
				_ = r.recorder.ReceivedMessage(ctx, in.UserID, in.Text)
			}
		}
		in.Matches = matches
		errs = append(errs, r.invoke(ctx, c, "msg_"+route.Pattern, route.Handler, in))
	}
	if served {
		return errors.Join(errs...)
	}

	r.logSkip(ctx, "message", logger.SanitizeLimit(in.Text, 64))
	return nil
}

func (r *Router) dispatchDocument(ctx context.Context, c tele.Context, in Inbound) error {
	r.mu.RLock()
	routes := r.documents
	r.mu.RUnlock()

	var errs []error
	served := false
	for _, route := range routes {
		if !matchesDocument(route, in.FileName, in.MIME) {
			continue
		}
		if !accessible(route.States, route.Roles, in.State, in.Roles) {
			continue
		}
		if !served {
			served = true
			if r.recorder != nil {
				_ = r.recorder.ReceivedDocument(ctx, in.UserID, in.FileName)
			}
		}
		errs = append(errs, r.invoke(ctx, c, "doc_"+in.FileName, route.Handler, in))
	}
	if served {
		return errors.Join(errs...)
	}

	r.logSkip(ctx, "document", in.FileName)
	return nil
}

func (r *Router) dispatchImage(ctx context.Context, c tele.Context, in Inbound) error {
	r.mu.RLock()
	routes := r.images
	r.mu.RUnlock()

	var errs []error
	served := false
	for _, route := range routes {
		if !accessible(route.States, route.Roles, in.State, in.Roles) {
			continue
		}
		served = true
		errs = append(errs, r.invoke(ctx, c, "img", route.Handler, in))
	}
	if served {
		return errors.Join(errs...)
	}

	r.logSkip(ctx, "image", "")
	return nil
}

// resolve builds the Inbound envelope: it initializes first-time users and
// loads their roles and state. Updates without a sender are rejected with
// errNoSender so dispatch never runs for an unidentified user.
func (r *Router) resolve(c tele.Context) (Inbound, context.Context, error) {
	ctx := tghelpers.BuildContext(c)
	user := c.Sender()
	if user == nil {
		r.logSkip(ctx, "no_sender", "")
		return Inbound{}, ctx, errNoSender
	}

	in := Inbound{
		UserID:    user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Tele:      c,
	}
	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
	}

	if err := r.access.EnsureUser(ctx, user.ID, user.Username, user.FirstName, user.LastName); err != nil {
		return in, ctx, fmt.Errorf("router: ensure user %d: %w", user.ID, err)
	}
	userRoles, err := r.access.UserRoles(ctx, user.ID)
	if err != nil {
		return in, ctx, fmt.Errorf("router: roles of user %d: %w", user.ID, err)
	}
	state, params, err := r.access.UserState(ctx, user.ID)
	if err != nil {
		return in, ctx, fmt.Errorf("router: state of user %d: %w", user.ID, err)
	}
	in.Roles = userRoles
	in.State = state
	in.StateParams = params
	return in, ctx, nil
}

func (r *Router) invoke(ctx context.Context, c tele.Context, name string, handler HandlerFunc, in Inbound) error {
	start := time.Now()
	ctx = logger.WithHandler(ctx, normalizeHandlerName(name))
	tghelpers.StoreContext(c, ctx)

	err := handler(ctx, in)

	attrs := []slog.Attr{
		slog.String("status", statusOf(err)),
		slog.String("state", in.State),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
	return err
}

func (r *Router) logSkip(ctx context.Context, kind, detail string) {
	logger.Debug(ctx, "tg", "route.skip",
		slog.String("status", "skip"),
		slog.String("kind", kind),
		slog.String("pattern", detail),
	)
}

// accessible applies the route filters: the user's state must be listed
// (unless the list is empty) and the user must hold at least one of the
// listed roles (unless the list is empty).
func accessible(states, routeRoles []string, state string, userRoles []string) bool {
	if len(states) > 0 {
		ok := false
		for _, st := range states {
			if st == state {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(routeRoles) > 0 {
		held := make(map[string]struct{}, len(userRoles))
		for _, role := range userRoles {
			held[role] = struct{}{}
		}
		for _, role := range routeRoles {
			if _, ok := held[role]; ok {
				return true
			}
		}
		return false
	}
	return true
}

func matchesDocument(route DocumentRoute, filename, mime string) bool {
	if len(route.FileNames) > 0 {
		ok := false
		for _, name := range route.FileNames {
			if name == filename {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(route.MIMETypes) > 0 {
		for _, m := range route.MIMETypes {
			if m == mime {
				return true
			}
		}
		return false
	}
	return true
}

// dropNoSender swallows errNoSender so senderless updates are dropped
// without surfacing an error to the transport.
func dropNoSender(err error) error {
	if errors.Is(err, errNoSender) {
		return nil
	}
	return err
}

func statusOf(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.ReplaceAll(name, " ", "_")
	if len(name) > 48 {
		name = name[:48]
	}
	return strings.ToLower(name)
}
