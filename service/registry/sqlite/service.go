// Package sqlite provides a Registry persisted in a SQLite database. Each
// write runs in its own IMMEDIATE transaction and is committed before the
// call returns.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/viant/buildfarm/internal/clock"
	"github.com/viant/buildfarm/internal/logging"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/registry"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Service implements registry.Registry.
type Service struct {
	pool   *pool
	logger *slog.Logger
}

var _ registry.Registry = (*Service)(nil)

// Option configures the service.
type Option func(*Service)

// WithLogger sets the logger for pool lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New opens (creating if needed) the database at path.
func New(path string, poolSize int, opts ...Option) (*Service, error) {
	ret := &Service{logger: logging.Discard()}
	for _, opt := range opts {
		opt(ret)
	}
	p, err := openPool(path, poolSize, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.pool = p
	return ret, nil
}

// Close closes the database once every borrowed connection is returned.
func (s *Service) Close() error {
	return s.pool.close()
}

const builderColumns = `name, url, processor, virtualized, vm_host, vm_reset_protocol,
	builder_ok, fail_notes, failure_count, manual, clean_status, current_item_id,
	version, date_clean_status_changed`

const itemColumns = `id, kind, build_id, score, processor, virtualized, status, builder,
	logtail, dependencies, suite, payload, date_created, date_started, date_finished`

// payload holds the item fields stored as a JSON document.
type payload struct {
	Chroot  queue.Chroot      `json:"chroot"`
	Files   []queue.File      `json:"files,omitempty"`
	Archive queue.Archive     `json:"archive"`
	Recipe  *queue.Recipe     `json:"recipe,omitempty"`
	Results map[string]string `json:"results,omitempty"`
}

func (s *Service) read(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)
	return fn(conn)
}

func (s *Service) write(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite registry: begin transaction: %w", err)
	}
	defer endTransaction(&err)
	return fn(conn)
}

func (s *Service) Builder(ctx context.Context, name string) (*builder.Builder, error) {
	var ret *builder.Builder
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		var err error
		ret, err = loadBuilder(conn, name)
		return err
	})
	return ret, err
}

func (s *Service) Builders(ctx context.Context) ([]*builder.Builder, error) {
	var ret []*builder.Builder
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT "+builderColumns+" FROM builders ORDER BY name", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ret = append(ret, scanBuilder(stmt))
				return nil
			},
		})
	})
	return ret, err
}

func (s *Service) SaveBuilder(ctx context.Context, b *builder.Builder) error {
	if b == nil {
		return fmt.Errorf("sqlite registry: nil builder")
	}
	if b.Name == "" {
		return fmt.Errorf("sqlite registry: builder name is required")
	}
	status := b.CleanStatus
	if status == "" {
		status = builder.CleanStatusDirty
	}
	return s.write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT OR REPLACE INTO builders ("+builderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{
				b.Name, b.URL, b.Processor, boolInt(b.Virtualized), b.VMHost, string(b.VMResetProtocol),
				boolInt(b.BuilderOK), b.FailNotes, b.FailureCount, boolInt(b.Manual), string(status),
				b.CurrentItemID, b.Version, unixNanos(b.DateCleanStatusChanged),
			},
		})
	})
}

func (s *Service) SetCleanStatus(ctx context.Context, name string, status builder.CleanStatus) (*builder.Transition, error) {
	transition := &builder.Transition{Builder: name, To: status, At: clock.Now()}
	err := s.write(ctx, func(conn *sqlite.Conn) error {
		b, err := loadBuilder(conn, name)
		if err != nil {
			return err
		}
		transition.From = b.CleanStatus
		return sqlitex.Execute(conn, "UPDATE builders SET clean_status = ?, date_clean_status_changed = ? WHERE name = ?",
			&sqlitex.ExecOptions{Args: []any{string(status), unixNanos(transition.At), name}})
	})
	if err != nil {
		return nil, err
	}
	return transition, nil
}

func (s *Service) FailBuilder(ctx context.Context, name, reason string) error {
	return s.updateBuilder(ctx, name, "builder_ok = 0, fail_notes = ?", reason)
}

func (s *Service) RecordFailure(ctx context.Context, name string) (int, error) {
	var count int
	err := s.write(ctx, func(conn *sqlite.Conn) error {
		if err := execBuilderUpdate(conn, name, "failure_count = failure_count + 1"); err != nil {
			return err
		}
		b, err := loadBuilder(conn, name)
		if err != nil {
			return err
		}
		count = b.FailureCount
		return nil
	})
	return count, err
}

func (s *Service) ResetFailures(ctx context.Context, name string) error {
	return s.updateBuilder(ctx, name, "failure_count = 0")
}

func (s *Service) updateBuilder(ctx context.Context, name, assignments string, args ...any) error {
	return s.write(ctx, func(conn *sqlite.Conn) error {
		return execBuilderUpdate(conn, name, assignments, args...)
	})
}

func execBuilderUpdate(conn *sqlite.Conn, name, assignments string, args ...any) error {
	err := sqlitex.Execute(conn, "UPDATE builders SET "+assignments+" WHERE name = ?",
		&sqlitex.ExecOptions{Args: append(args, name)})
	if err != nil {
		return fmt.Errorf("sqlite registry: update builder %s: %w", name, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("%w: %s", registry.ErrBuilderNotFound, name)
	}
	return nil
}

func (s *Service) SaveItem(ctx context.Context, item *queue.Item) error {
	if item == nil {
		return fmt.Errorf("sqlite registry: nil build queue item")
	}
	if item.ID == "" {
		return fmt.Errorf("sqlite registry: build queue item id is required")
	}
	status := item.Status
	if status == "" {
		status = queue.StatusNeedsBuild
	}
	created := item.DateCreated
	if created.IsZero() {
		created = clock.Now()
	}
	data, err := json.Marshal(payload{
		Chroot:  item.Chroot,
		Files:   item.Files,
		Archive: item.Archive,
		Recipe:  item.Recipe,
		Results: item.Results,
	})
	if err != nil {
		return fmt.Errorf("sqlite registry: marshal item %s: %w", item.ID, err)
	}
	return s.write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT OR REPLACE INTO queue_items ("+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{
				item.ID, string(item.Kind), item.BuildID, item.Score, item.Processor, boolInt(item.Virtualized),
				string(status), item.Builder, item.Logtail, item.Dependencies, item.Suite, string(data),
				unixNanos(created), unixNanos(item.DateStarted), unixNanos(item.DateFinished),
			},
		})
	})
}

func (s *Service) Item(ctx context.Context, id string) (*queue.Item, error) {
	var ret *queue.Item
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		var err error
		ret, err = loadItem(conn, id)
		return err
	})
	return ret, err
}

func (s *Service) NextCandidate(ctx context.Context, vitals builder.Vitals) (*queue.Item, error) {
	var ret *queue.Item
	var scanErr error
	err := s.read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT "+itemColumns+` FROM queue_items
			WHERE status = ? AND builder = '' AND virtualized = ?
			AND (processor = '' OR ? = '' OR processor = ?)
			ORDER BY score DESC, date_created ASC, id ASC LIMIT 1`, &sqlitex.ExecOptions{
			Args: []any{string(queue.StatusNeedsBuild), boolInt(vitals.Virtualized), vitals.Processor, vitals.Processor},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ret, scanErr = scanItem(stmt)
				return scanErr
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) MarkBuilding(ctx context.Context, itemID, builderName string) error {
	return s.write(ctx, func(conn *sqlite.Conn) error {
		if _, err := loadBuilder(conn, builderName); err != nil {
			return err
		}
		item, err := loadItem(conn, itemID)
		if err != nil {
			return err
		}
		if item.Status != queue.StatusNeedsBuild || item.Builder != "" {
			return fmt.Errorf("%w: %s", registry.ErrItemNotAvailable, itemID)
		}
		err = sqlitex.Execute(conn, `UPDATE queue_items SET status = ?, builder = ?, date_started = ?, logtail = ''
			WHERE id = ?`, &sqlitex.ExecOptions{
			Args: []any{string(queue.StatusBuilding), builderName, unixNanos(clock.Now()), itemID},
		})
		if err != nil {
			return err
		}
		return execBuilderUpdate(conn, builderName, "current_item_id = ?", itemID)
	})
}

func (s *Service) UpdateProgress(ctx context.Context, itemID string, progress queue.Progress) error {
	return s.write(ctx, func(conn *sqlite.Conn) error {
		return execItemUpdate(conn, itemID, "logtail = ?", progress.Logtail)
	})
}

func (s *Service) CompleteBuild(ctx context.Context, itemID string, outcome queue.Outcome) error {
	finished := outcome.FinishedAt
	if finished.IsZero() {
		finished = clock.Now()
	}
	return s.write(ctx, func(conn *sqlite.Conn) error {
		item, err := loadItem(conn, itemID)
		if err != nil {
			return err
		}
		p := payload{Chroot: item.Chroot, Files: item.Files, Archive: item.Archive, Recipe: item.Recipe, Results: outcome.Results}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("sqlite registry: marshal item %s: %w", itemID, err)
		}
		err = execItemUpdate(conn, itemID, "status = ?, dependencies = ?, payload = ?, date_finished = ?",
			string(outcome.Status), outcome.Dependencies, string(data), unixNanos(finished))
		if err != nil {
			return err
		}
		return releaseBuilder(conn, item.Builder, itemID)
	})
}

func (s *Service) ResetItem(ctx context.Context, itemID string) error {
	return s.write(ctx, func(conn *sqlite.Conn) error {
		item, err := loadItem(conn, itemID)
		if err != nil {
			return err
		}
		err = execItemUpdate(conn, itemID, "status = ?, builder = '', logtail = '', date_started = 0",
			string(queue.StatusNeedsBuild))
		if err != nil {
			return err
		}
		return releaseBuilder(conn, item.Builder, itemID)
	})
}

func execItemUpdate(conn *sqlite.Conn, id, assignments string, args ...any) error {
	err := sqlitex.Execute(conn, "UPDATE queue_items SET "+assignments+" WHERE id = ?",
		&sqlitex.ExecOptions{Args: append(args, id)})
	if err != nil {
		return fmt.Errorf("sqlite registry: update item %s: %w", id, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("%w: %s", registry.ErrItemNotFound, id)
	}
	return nil
}

func releaseBuilder(conn *sqlite.Conn, name, itemID string) error {
	if name == "" {
		return nil
	}
	return sqlitex.Execute(conn, "UPDATE builders SET current_item_id = '' WHERE name = ? AND current_item_id = ?",
		&sqlitex.ExecOptions{Args: []any{name, itemID}})
}

func loadBuilder(conn *sqlite.Conn, name string) (*builder.Builder, error) {
	var ret *builder.Builder
	err := sqlitex.Execute(conn, "SELECT "+builderColumns+" FROM builders WHERE name = ?", &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ret = scanBuilder(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite registry: load builder %s: %w", name, err)
	}
	if ret == nil {
		return nil, fmt.Errorf("%w: %s", registry.ErrBuilderNotFound, name)
	}
	return ret, nil
}

func scanBuilder(stmt *sqlite.Stmt) *builder.Builder {
	return &builder.Builder{
		Name:                   stmt.ColumnText(0),
		URL:                    stmt.ColumnText(1),
		Processor:              stmt.ColumnText(2),
		Virtualized:            stmt.ColumnInt(3) != 0,
		VMHost:                 stmt.ColumnText(4),
		VMResetProtocol:        builder.ResetProtocol(stmt.ColumnText(5)),
		BuilderOK:              stmt.ColumnInt(6) != 0,
		FailNotes:              stmt.ColumnText(7),
		FailureCount:           stmt.ColumnInt(8),
		Manual:                 stmt.ColumnInt(9) != 0,
		CleanStatus:            builder.CleanStatus(stmt.ColumnText(10)),
		CurrentItemID:          stmt.ColumnText(11),
		Version:                stmt.ColumnText(12),
		DateCleanStatusChanged: fromUnixNanos(stmt.ColumnInt64(13)),
	}
}

func loadItem(conn *sqlite.Conn, id string) (*queue.Item, error) {
	var ret *queue.Item
	err := sqlitex.Execute(conn, "SELECT "+itemColumns+" FROM queue_items WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var err error
			ret, err = scanItem(stmt)
			return err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite registry: load item %s: %w", id, err)
	}
	if ret == nil {
		return nil, fmt.Errorf("%w: %s", registry.ErrItemNotFound, id)
	}
	return ret, nil
}

func scanItem(stmt *sqlite.Stmt) (*queue.Item, error) {
	ret := &queue.Item{
		ID:           stmt.ColumnText(0),
		Kind:         queue.Kind(stmt.ColumnText(1)),
		BuildID:      stmt.ColumnText(2),
		Score:        stmt.ColumnInt(3),
		Processor:    stmt.ColumnText(4),
		Virtualized:  stmt.ColumnInt(5) != 0,
		Status:       queue.Status(stmt.ColumnText(6)),
		Builder:      stmt.ColumnText(7),
		Logtail:      stmt.ColumnText(8),
		Dependencies: stmt.ColumnText(9),
		Suite:        stmt.ColumnText(10),
		DateCreated:  fromUnixNanos(stmt.ColumnInt64(12)),
		DateStarted:  fromUnixNanos(stmt.ColumnInt64(13)),
		DateFinished: fromUnixNanos(stmt.ColumnInt64(14)),
	}
	var p payload
	if err := json.Unmarshal([]byte(stmt.ColumnText(11)), &p); err != nil {
		return nil, fmt.Errorf("sqlite registry: item %s payload: %w", ret.ID, err)
	}
	ret.Chroot = p.Chroot
	ret.Files = p.Files
	ret.Archive = p.Archive
	ret.Recipe = p.Recipe
	ret.Results = p.Results
	return ret, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}
