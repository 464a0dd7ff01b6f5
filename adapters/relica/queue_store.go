package relica

import (
	"context"
	"database/sql"
	"time"

	"github.com/coregx/relica"
	"github.com/coregx/subhub"
	"github.com/coregx/subhub/model"
)

// QueueStore implements subhub.QueueStore over the durable message table.
type QueueStore struct {
	db          *relica.DB
	sqlDB       *sql.DB
	driverName  string
	tablePrefix string
}

// NewQueueStore creates a new QueueStore with default table prefix.
func NewQueueStore(sqlDB *sql.DB, driverName string) *QueueStore {
	return NewQueueStoreWithPrefix(sqlDB, driverName, "pubsub_")
}

// NewQueueStoreWithPrefix creates a new QueueStore with custom table prefix.
func NewQueueStoreWithPrefix(sqlDB *sql.DB, driverName, prefix string) *QueueStore {
	return &QueueStore{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		driverName:  driverName,
		tablePrefix: prefix,
	}
}

func (s *QueueStore) tableName() string {
	return s.tablePrefix + "message"
}

// EnqueueDurable appends a GD message to the durable table. A claimed
// message lands in its subscriber queue; an unclaimed one is stored pending
// until the first migration.
func (s *QueueStore) EnqueueDurable(ctx context.Context, m *model.TopicMessage) error {
	err := s.db.WithContext(ctx).Model(m).Table(s.tableName()).Insert()
	if err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to enqueue message", err)
	}
	return nil
}

// DepthDurable returns the number of undelivered durable messages for the
// subscriber key.
func (s *QueueStore) DepthDurable(ctx context.Context, subKey string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Select("COUNT(*)").
		From(s.tableName()).
		Where("sub_key = ? AND delivered_at IS NULL", subKey).
		One(&count)
	if err != nil {
		return 0, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to read queue depth", err)
	}
	return int(count), nil
}

// FetchDue retrieves up to limit undelivered durable messages for the
// subscriber key, oldest first.
func (s *QueueStore) FetchDue(ctx context.Context, subKey string, limit int) ([]model.TopicMessage, error) {
	var messages []model.TopicMessage
	err := s.db.WithContext(ctx).
		Select("*").
		From(s.tableName()).
		Where("sub_key = ? AND delivered_at IS NULL", subKey).
		OrderBy("pub_time ASC, id ASC").
		Limit(int64(limit)).
		All(&messages)
	if err != nil {
		return nil, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to fetch due messages", err)
	}
	if len(messages) == 0 {
		return nil, subhub.ErrNoData
	}
	return messages, nil
}

// MarkDelivered records successful delivery of the given messages.
func (s *QueueStore) MarkDelivered(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := rebind(s.driverName,
		"UPDATE "+s.tableName()+
			" SET delivered_at = ?, delivery_count = delivery_count + 1"+
			" WHERE id IN ("+placeholders(len(ids))+")")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, time.Now())
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to mark messages delivered", err)
	}
	return nil
}

// DeleteQueues drops all durable messages of the given subscriber keys in one
// statement.
func (s *QueueStore) DeleteQueues(ctx context.Context, subKeys []string) error {
	if len(subKeys) == 0 {
		return nil
	}
	query := rebind(s.driverName,
		"DELETE FROM "+s.tableName()+" WHERE sub_key IN ("+placeholders(len(subKeys))+")")
	if _, err := s.sqlDB.ExecContext(ctx, query, anySlice(subKeys)...); err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to delete subscriber queues", err)
	}
	return nil
}
