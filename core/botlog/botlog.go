// Package botlog records bot activity events into a storage collection so
// they survive restarts and can be inspected through the same database the
// bot already uses. Events also mirror to the structured logger.
package botlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"botkit/core/logger"
	"botkit/core/storage"
)

// Event severity levels, lowest to highest.
const (
	LevelDebug    = "DEBUG"
	LevelInfo     = "INFO"
	LevelWarning  = "WARNING"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

// Document field names in the log collection.
const (
	FieldTime   = "time"
	FieldEvent  = "event"
	FieldParams = "params"
)

// ErrUnknownLevel reports a level name outside the known set.
var ErrUnknownLevel = errors.New("unknown log level")

var levelRank = map[string]int{
	LevelDebug:    1,
	LevelInfo:     2,
	LevelWarning:  3,
	LevelError:    4,
	LevelCritical: 5,
}

// Options configure a Logger.
type Options struct {
	Collection string
	// Level is the minimum severity to persist; defaults to INFO.
	Level string
	// ShortParams trims multi-line parameter values to their first line.
	ShortParams bool
}

// Logger writes bot activity events to a storage collection.
type Logger struct {
	store       storage.Store
	collection  string
	shortParams bool

	mu    sync.RWMutex
	level int
}

// New builds a Logger over the given store.
func New(store storage.Store, opts Options) (*Logger, error) {
	if opts.Collection == "" {
		opts.Collection = "Logs"
	}
	if opts.Level == "" {
		opts.Level = LevelInfo
	}
	rank, ok := levelRank[strings.ToUpper(opts.Level)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, opts.Level)
	}
	return &Logger{
		store:       store,
		collection:  opts.Collection,
		shortParams: opts.ShortParams,
		level:       rank,
	}, nil
}

// SetLevel changes the minimum severity to persist.
func (l *Logger) SetLevel(level string) error {
	rank, ok := levelRank[strings.ToUpper(level)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	l.mu.Lock()
	l.level = rank
	l.mu.Unlock()
	return nil
}

// Write persists an event when its level passes the threshold. Events
// below the threshold are dropped silently.
func (l *Logger) Write(ctx context.Context, level, event string, params storage.Document) error {
	rank, ok := levelRank[strings.ToUpper(level)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	l.mu.RLock()
	threshold := l.level
	l.mu.RUnlock()
	if rank < threshold {
		return nil
	}

	doc := storage.Document{
		FieldTime:  time.Now().UnixMilli(),
		FieldEvent: event,
	}
	if len(params) > 0 {
		doc[FieldParams] = l.renderParams(params)
	}
	if err := l.store.InsertOne(ctx, l.collection, doc); err != nil {
		return fmt.Errorf("botlog: insert event: %w", err)
	}

	logger.LogEvent(ctx, logger.BOT, slogLevel(rank), event, paramAttrs(params)...)
	return nil
}

// renderParams stringifies parameter values; with ShortParams enabled,
// multi-line values keep only their first line plus a cut marker.
func (l *Logger) renderParams(params storage.Document) storage.Document {
	out := make(storage.Document, len(params))
	for k, v := range params {
		s := fmt.Sprint(v)
		if l.shortParams {
			if idx := strings.IndexByte(s, '\n'); idx >= 0 {
				s = s[:idx] + " <...>"
			}
		}
		out[k] = s
	}
	return out
}

// CleanOld deletes events older than maxAge and records the cleanup itself.
func (l *Logger) CleanOld(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	if err := l.store.DeleteBefore(ctx, l.collection, FieldTime, cutoff); err != nil {
		return fmt.Errorf("botlog: clean old events: %w", err)
	}
	return l.Write(ctx, LevelInfo, "Old logs cleaned", storage.Document{
		"max_age": maxAge.String(),
	})
}

// DumpLast returns the newest count events, oldest first.
func (l *Logger) DumpLast(ctx context.Context, count int) ([]storage.Document, error) {
	docs, err := l.store.Find(ctx, l.collection, nil, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("botlog: read events: %w", err)
	}
	sortByTime(docs)
	if count > 0 && len(docs) > count {
		docs = docs[len(docs)-count:]
	}
	return docs, nil
}

// Start records bot startup.
func (l *Logger) Start(ctx context.Context) error {
	return l.Write(ctx, LevelInfo, "Bot started", nil)
}

// Stop records bot shutdown.
func (l *Logger) Stop(ctx context.Context) error {
	return l.Write(ctx, LevelInfo, "Bot stopped", nil)
}

// SentMessage records an outgoing text message.
func (l *Logger) SentMessage(ctx context.Context, userID int64, text string) error {
	return l.Write(ctx, LevelInfo, "Message sent", storage.Document{
		"user_id": userID,
		"text":    text,
	})
}

// ReceivedMessage records an incoming text message.
func (l *Logger) ReceivedMessage(ctx context.Context, userID int64, text string) error {
	return l.Write(ctx, LevelInfo, "Message received", storage.Document{
		"user_id": userID,
		"text":    text,
	})
}

// ReceivedCommand records an incoming command.
func (l *Logger) ReceivedCommand(ctx context.Context, userID int64, command string) error {
	return l.Write(ctx, LevelInfo, "Command received", storage.Document{
		"user_id": userID,
		"command": command,
	})
}

// SentDocument records an outgoing document.
func (l *Logger) SentDocument(ctx context.Context, userID int64, filename string) error {
	return l.Write(ctx, LevelInfo, "Document sent", storage.Document{
		"user_id":  userID,
		"filename": filename,
	})
}

// ReceivedDocument records an incoming document.
func (l *Logger) ReceivedDocument(ctx context.Context, userID int64, filename string) error {
	return l.Write(ctx, LevelInfo, "Document received", storage.Document{
		"user_id":  userID,
		"filename": filename,
	})
}

// Error records a handler or transport failure.
func (l *Logger) Error(ctx context.Context, event string, err error) error {
	params := storage.Document{}
	if err != nil {
		params["err"] = err.Error()
	}
	return l.Write(ctx, LevelError, event, params)
}

func sortByTime(docs []storage.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docTime(docs[i]) < docTime(docs[j])
	})
}

func docTime(doc storage.Document) int64 {
	ts, _ := storage.NumericValue(doc[FieldTime])
	return ts
}

func slogLevel(rank int) slog.Level {
	switch rank {
	case levelRank[LevelDebug]:
		return slog.LevelDebug
	case levelRank[LevelWarning]:
		return slog.LevelWarn
	case levelRank[LevelError], levelRank[LevelCritical]:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func paramAttrs(params storage.Document) []slog.Attr {
	if len(params) == 0 {
		return nil
	}
	attrs := make([]slog.Attr, 0, len(params))
	for k, v := range params {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}
