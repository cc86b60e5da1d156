// Package sync reconciles the local store with the remote store. A cycle is
// push (local changes out) then pull (remote changes in); push always runs
// first so a concurrent local edit reaches the server before the server's
// copy overwrites it.
package sync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mneme-app/mneme/internal/bus"
	"github.com/mneme-app/mneme/internal/remote"
	"github.com/mneme-app/mneme/internal/store"
	"go.uber.org/zap"
)

// Engine orchestrates push and pull passes over the repositories. It never
// touches the local store with raw writes; everything goes through the
// repositories so sync bookkeeping cannot be bypassed.
type Engine struct {
	db       *store.DB
	chats    *store.ChatRepo
	messages *store.MessageRepo
	users    *store.UserRepo
	client   *remote.Client
	machine  *Machine
	bus      *bus.Bus
	logger   *zap.Logger

	// inFlight serializes cycles: an invocation arriving while one is in
	// flight is coalesced into it (dropped), never queued behind it.
	inFlight atomic.Bool
}

// NewEngine creates a sync engine over the given repositories and client.
func NewEngine(db *store.DB, chats *store.ChatRepo, messages *store.MessageRepo,
	users *store.UserRepo, client *remote.Client, machine *Machine,
	b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:       db,
		chats:    chats,
		messages: messages,
		users:    users,
		client:   client,
		machine:  machine,
		bus:      b,
		logger:   logger,
	}
}

// InFlight reports whether a cycle is currently running.
func (e *Engine) InFlight() bool {
	return e.inFlight.Load()
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Sync runs a full cycle: push then pull, sequentially. A call while a
// cycle is in flight is a no-op.
func (e *Engine) Sync(ctx context.Context) error {
	return e.runExclusive(func() error {
		e.publish("sync.started", nil)
		if err := e.push(ctx); err != nil {
			return err
		}
		return e.pull(ctx)
	})
}

// Push sends all pending and never-synced local records to the server.
// A call while a cycle is in flight is a no-op.
func (e *Engine) Push(ctx context.Context) error {
	return e.runExclusive(func() error { return e.push(ctx) })
}

// Pull fetches remote changes and merges them into the local store.
// A call while a cycle is in flight is a no-op.
func (e *Engine) Pull(ctx context.Context) error {
	return e.runExclusive(func() error { return e.pull(ctx) })
}

func (e *Engine) runExclusive(fn func() error) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer e.inFlight.Store(false)

	// Diagnostic flag only; exclusion is the CAS above.
	_ = e.db.SetSyncing(true)
	defer func() { _ = e.db.SetSyncing(false) }()

	err := fn()
	if err != nil {
		if e.machine.Current() != Idle {
			_ = e.machine.Transition(Failed)
			_ = e.machine.Transition(Idle)
		}
		e.publish("sync.failed", err.Error())
		return err
	}
	if e.machine.Current() != Idle {
		_ = e.machine.Transition(Idle)
	}
	return nil
}

// push sends chats before messages before the user: a message's foreign key
// must resolve to a server-known chat before the message can be associated.
// Per-record failures are skipped and retried on a later cycle; a transport
// failure aborts the pass with local state untouched.
func (e *Engine) push(ctx context.Context) error {
	_ = e.machine.Transition(Pushing)

	var failed int
	if err := e.pushChats(ctx, &failed); err != nil {
		return err
	}
	if err := e.pushMessages(ctx, &failed); err != nil {
		return err
	}
	if err := e.pushUser(ctx, &failed); err != nil {
		return err
	}

	_ = e.db.SetLastPushAt(time.Now().UnixMilli())
	if failed > 0 {
		e.logger.Warn("push finished with rejected records", zap.Int("failed", failed))
	}
	e.publish("sync.pushed", failed)
	return nil
}

// collectChats unions pending and never-synced rows, deduplicated by local
// id. The union is deliberate redundancy: either query alone can miss rows
// after an interrupted cycle.
func (e *Engine) collectChats() ([]store.Chat, error) {
	pending, err := e.chats.GetPendingSync()
	if err != nil {
		return nil, err
	}
	never, err := e.chats.GetNeverSynced()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(pending))
	out := pending
	for _, c := range pending {
		seen[c.ID] = true
	}
	for _, c := range never {
		if !seen[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *Engine) pushChats(ctx context.Context, failed *int) error {
	chats, err := e.collectChats()
	if err != nil {
		return err
	}
	for i := range chats {
		c := &chats[i]
		if err := e.pushChat(ctx, c); err != nil {
			if remote.IsTransient(err) {
				return err
			}
			*failed++
			e.logger.Error("chat rejected by server",
				zap.String("local_id", c.ID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) pushChat(ctx context.Context, c *store.Chat) error {
	switch {
	case c.DeletedAt != nil && c.ServerID == nil:
		// Deleted before it ever reached the server; nothing to reconcile.
		return e.chats.HardDelete(c.ID)
	case c.DeletedAt != nil:
		if _, err := e.client.UpdateChat(ctx, *c.ServerID, chatToWire(c)); err != nil {
			return err
		}
		return e.chats.MarkDeletionSynced(c.ID)
	case c.ServerID == nil:
		created, err := e.client.CreateChat(ctx, chatToWire(c))
		if err != nil {
			return err
		}
		return e.chats.MarkSynced(c.ID, created.ID)
	default:
		if _, err := e.client.UpdateChat(ctx, *c.ServerID, chatToWire(c)); err != nil {
			return err
		}
		return e.chats.MarkSynced(c.ID, *c.ServerID)
	}
}

func (e *Engine) collectMessages() ([]store.Message, error) {
	pending, err := e.messages.GetPendingSync()
	if err != nil {
		return nil, err
	}
	never, err := e.messages.GetNeverSynced()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(pending))
	out := pending
	for _, m := range pending {
		seen[m.ID] = true
	}
	for _, m := range never {
		if !seen[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (e *Engine) pushMessages(ctx context.Context, failed *int) error {
	msgs, err := e.collectMessages()
	if err != nil {
		return err
	}
	for i := range msgs {
		m := &msgs[i]
		if err := e.pushMessage(ctx, m); err != nil {
			if remote.IsTransient(err) {
				return err
			}
			*failed++
			e.logger.Error("message rejected by server",
				zap.String("local_id", m.ID), zap.String("chat_id", m.ChatID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) pushMessage(ctx context.Context, m *store.Message) error {
	switch {
	case m.DeletedAt != nil && m.ServerID == nil:
		return e.messages.HardDelete(m.ID)
	case m.DeletedAt != nil:
		if _, err := e.client.UpdateMessage(ctx, *m.ServerID, messageToWire(m)); err != nil {
			return err
		}
		return e.messages.MarkDeletionSynced(m.ID)
	case m.ServerID == nil:
		chatServerID, err := e.chats.ServerIDFor(m.ChatID)
		if err != nil {
			return err
		}
		if chatServerID == nil {
			// Parent chat has no server identity yet (its create failed or
			// is still pending); leave the message for the next cycle.
			e.logger.Info("deferring message until chat is synced",
				zap.String("local_id", m.ID), zap.String("chat_id", m.ChatID))
			return nil
		}
		created, err := e.client.CreateMessage(ctx, *chatServerID, messageToWire(m))
		if err != nil {
			return err
		}
		return e.messages.MarkSynced(m.ID, created.ID)
	default:
		if _, err := e.client.UpdateMessage(ctx, *m.ServerID, messageToWire(m)); err != nil {
			return err
		}
		return e.messages.MarkSynced(m.ID, *m.ServerID)
	}
}

func (e *Engine) pushUser(ctx context.Context, failed *int) error {
	u, err := e.users.GetPendingSync()
	if err != nil {
		return err
	}
	if u == nil {
		if u, err = e.users.GetNeverSynced(); err != nil {
			return err
		}
	}
	if u == nil {
		return nil
	}

	saved, err := e.client.PutUser(ctx, userToWire(u))
	if err != nil {
		if remote.IsTransient(err) {
			return err
		}
		*failed++
		e.logger.Error("user profile rejected by server",
			zap.String("local_id", u.ID), zap.Error(err))
		return nil
	}
	return e.users.MarkSynced(u.ID, saved.ID)
}

// pull merges remote state in: full chat snapshot, messages changed since
// the last checkpoint, then the profile. The checkpoint advances only after
// a fully successful pull so an interrupted merge is re-covered next time.
func (e *Engine) pull(ctx context.Context) error {
	_ = e.machine.Transition(Pulling)

	meta, err := e.db.GetSyncMeta()
	if err != nil {
		return err
	}
	// Taken before the fetch so records changing mid-pull are seen again.
	checkpoint := time.Now().UnixMilli()

	chats, err := e.client.ListChats(ctx)
	if err != nil {
		return err
	}
	for i := range chats {
		w := &chats[i]
		if w.IsDeleted {
			ts := w.UpdatedAt
			if w.DeletedAt != nil {
				ts = *w.DeletedAt
			}
			if err := e.chats.MarkDeletedFromServer(w.ID, ts); err != nil {
				return err
			}
			continue
		}
		if err := e.chats.UpsertFromServer(chatFromWire(w)); err != nil {
			return err
		}
	}

	var since int64
	if meta.LastPullAt != nil {
		since = *meta.LastPullAt
	}
	msgs, err := e.client.ListMessages(ctx, since)
	if err != nil {
		return err
	}
	for i := range msgs {
		w := &msgs[i]
		if w.IsDeleted {
			ts := w.UpdatedAt
			if w.DeletedAt != nil {
				ts = *w.DeletedAt
			}
			if err := e.messages.MarkDeletedFromServer(w.ID, ts); err != nil {
				return err
			}
			continue
		}
		chat, err := e.chats.GetByServerID(w.ChatID)
		if err != nil {
			return err
		}
		if chat == nil {
			// Parent tombstoned or unknown; the message will not resurrect it.
			e.logger.Info("skipping message without live local chat",
				zap.String("server_id", w.ID), zap.String("chat_server_id", w.ChatID))
			continue
		}
		if err := e.messages.UpsertFromServer(chat.ID, messageFromWire(w)); err != nil {
			return err
		}
	}

	user, err := e.client.GetUser(ctx)
	if err != nil {
		return err
	}
	if user != nil {
		if err := e.users.UpsertFromServer(userFromWire(user)); err != nil {
			return err
		}
	}

	if err := e.db.SetLastPullAt(checkpoint); err != nil {
		return err
	}
	e.publish("sync.pulled", len(chats)+len(msgs))
	return nil
}

// PurgeTombstones drops soft-deleted rows whose deletion the server
// confirmed longer than retention ago. Run as maintenance at startup.
func (e *Engine) PurgeTombstones(retention time.Duration) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	if n, err := e.messages.PurgeTombstones(cutoff); err != nil {
		e.logger.Warn("purge message tombstones", zap.Error(err))
	} else if n > 0 {
		e.logger.Info("purged message tombstones", zap.Int64("count", n))
	}
	if n, err := e.chats.PurgeTombstones(cutoff); err != nil {
		e.logger.Warn("purge chat tombstones", zap.Error(err))
	} else if n > 0 {
		e.logger.Info("purged chat tombstones", zap.Int64("count", n))
	}
}
