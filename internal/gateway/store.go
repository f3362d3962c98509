package gateway

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/nao1215/rdsds/pkg/event"
	"github.com/nao1215/rdsds/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserNotFound はユーザーが登録されていないことを表す。
var ErrUserNotFound = errors.New("user not found")

// User はログインしたことのあるユーザー。
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID          string    `bun:"id,pk" json:"id"`
	Email       string    `bun:"email,notnull" json:"email"`
	Name        string    `bun:"name,notnull" json:"name"`
	Provider    string    `bun:"provider,notnull" json:"provider"`
	Subject     string    `bun:"subject,notnull" json:"subject"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	LastLoginAt time.Time `bun:"last_login_at,notnull" json:"last_login_at"`
}

// auditEventRecord はaudit_eventsテーブルの行。
type auditEventRecord struct {
	bun.BaseModel `bun:"table:audit_events"`

	ID            string    `bun:"id,pk"`
	AggregateID   string    `bun:"aggregate_id,notnull"`
	AggregateType string    `bun:"aggregate_type,notnull"`
	EventType     string    `bun:"event_type,notnull"`
	Actor         string    `bun:"actor,notnull"`
	Data          string    `bun:"data,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

// Store はユーザーと監査イベントを保存するSQLiteストア。
type Store struct {
	db *bun.DB
}

// OpenStore はSQLiteデータベースを開き、マイグレーションを適用する。
// pathに":memory:"を指定するとインメモリデータベースを使う。
func OpenStore(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if path == ":memory:" {
		// インメモリDBは接続ごとに別物になるため1接続に固定する
		sqlDB.SetMaxOpenConns(1)
	}

	n, err := migration.Run(ctx, sqlDB, migrationsFS, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	logrus.WithFields(logrus.Fields{"path": path, "applied": n}).Infoln("データベースを開きました")

	return &Store{db: bun.NewDB(sqlDB, sqlitedialect.New())}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertUser はユーザーを登録する。同じメールアドレスのユーザーがいれば
// 名前と最終ログイン日時を更新する。
func (s *Store) UpsertUser(ctx context.Context, email, name, provider, subject string) (*User, error) {
	now := time.Now().UTC()
	u := &User{
		ID:          uuid.New().String(),
		Email:       email,
		Name:        name,
		Provider:    provider,
		Subject:     subject,
		CreatedAt:   now,
		LastLoginAt: now,
	}

	_, err := s.db.NewInsert().
		Model(u).
		On("CONFLICT (email) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("provider = EXCLUDED.provider").
		Set("subject = EXCLUDED.subject").
		Set("last_login_at = EXCLUDED.last_login_at").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}
	return s.UserByEmail(ctx, email)
}

// UserByEmail はメールアドレスでユーザーを取得する。
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	u := new(User)
	err := s.db.NewSelect().Model(u).Where("email = ?", email).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return u, nil
}

// Record は監査イベントを保存する。transfer.Auditorを満たす。
func (s *Store) Record(ctx context.Context, e *event.Event) error {
	data := string(e.Data)
	if data == "" {
		data = "{}"
	}
	record := &auditEventRecord{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: string(e.AggregateType),
		EventType:     string(e.EventType),
		Actor:         e.Actor,
		Data:          data,
		CreatedAt:     e.CreatedAt.UTC(),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("監査イベントの保存に失敗: %w", err)
	}
	return nil
}

// ListEvents はactorの監査イベントを新しい順に最大limit件返す。
func (s *Store) ListEvents(ctx context.Context, actor string, limit int) ([]*event.Event, error) {
	var records []auditEventRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("actor = ?", actor).
		OrderExpr("created_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("監査イベントの取得に失敗: %w", err)
	}

	events := make([]*event.Event, 0, len(records))
	for _, r := range records {
		events = append(events, &event.Event{
			ID:            r.ID,
			AggregateID:   r.AggregateID,
			AggregateType: event.AggregateType(r.AggregateType),
			EventType:     event.Type(r.EventType),
			Actor:         r.Actor,
			Data:          json.RawMessage(r.Data),
			CreatedAt:     r.CreatedAt,
		})
	}
	return events, nil
}
