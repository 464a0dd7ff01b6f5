package relica

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/coregx/relica"
	"github.com/coregx/subhub"
	"github.com/coregx/subhub/model"
)

// SubscriptionStore implements subhub.SubscriptionStore using Relica for the
// query paths and a database/sql transaction for the subscribe mutation.
type SubscriptionStore struct {
	db          *relica.DB
	sqlDB       *sql.DB
	driverName  string
	tablePrefix string
}

// NewSubscriptionStore creates a new SubscriptionStore with default table prefix.
func NewSubscriptionStore(sqlDB *sql.DB, driverName string) *SubscriptionStore {
	return NewSubscriptionStoreWithPrefix(sqlDB, driverName, "pubsub_")
}

// NewSubscriptionStoreWithPrefix creates a new SubscriptionStore with custom table prefix.
func NewSubscriptionStoreWithPrefix(sqlDB *sql.DB, driverName, prefix string) *SubscriptionStore {
	return &SubscriptionStore{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		driverName:  driverName,
		tablePrefix: prefix,
	}
}

func (s *SubscriptionStore) tableName() string {
	return s.tablePrefix + "subscription"
}

func (s *SubscriptionStore) messageTable() string {
	return s.tablePrefix + "message"
}

// Begin opens the transaction used by the subscribe operation.
func (s *SubscriptionStore) Begin(ctx context.Context) (subhub.SubscriptionTx, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to begin subscribe transaction", err)
	}
	return &subscriptionTx{
		tx:           tx,
		driverName:   s.driverName,
		subTable:     s.tableName(),
		messageTable: s.messageTable(),
	}, nil
}

// HasActive reports whether the endpoint holds an active subscription to the
// topic.
func (s *SubscriptionStore) HasActive(ctx context.Context, topicID, endpointID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Select("COUNT(*)").
		From(s.tableName()).
		Where("topic_id = ? AND endpoint_id = ? AND is_active = ?", topicID, endpointID, true).
		One(&count)
	if err != nil {
		return false, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to check active subscription", err)
	}
	return count > 0, nil
}

// LoadBySubKey retrieves a subscription by subscriber key.
func (s *SubscriptionStore) LoadBySubKey(ctx context.Context, subKey string) (model.Subscription, error) {
	var sub model.Subscription
	err := s.db.WithContext(ctx).Select("*").From(s.tableName()).Where("sub_key = ?", subKey).One(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, subhub.ErrNoData
	}
	if err != nil {
		return sub, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to load subscription", err)
	}
	return sub, nil
}

// ListByEndpoint retrieves all subscriptions of an endpoint, active or not.
func (s *SubscriptionStore) ListByEndpoint(ctx context.Context, endpointID int64) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := s.db.WithContext(ctx).
		Select("*").
		From(s.tableName()).
		Where("endpoint_id = ?", endpointID).
		OrderBy("creation_time ASC").
		All(&subs)
	if err != nil {
		return nil, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to list subscriptions", err)
	}
	return subs, nil
}

// DeleteBySubKeys removes the given subscription rows in one statement.
func (s *SubscriptionStore) DeleteBySubKeys(ctx context.Context, subKeys []string) error {
	if len(subKeys) == 0 {
		return nil
	}
	query := rebind(s.driverName,
		"DELETE FROM "+s.tableName()+" WHERE sub_key IN ("+placeholders(len(subKeys))+")")
	if _, err := s.sqlDB.ExecContext(ctx, query, anySlice(subKeys)...); err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to delete subscriptions", err)
	}
	return nil
}

// UpdateInteraction refreshes last-interaction metadata on all rows matching
// the given subscriber keys in one statement.
func (s *SubscriptionStore) UpdateInteraction(ctx context.Context, subKeys []string, interaction model.Interaction) error {
	if len(subKeys) == 0 {
		return nil
	}
	query := rebind(s.driverName,
		"UPDATE "+s.tableName()+
			" SET last_interaction_time = ?, last_interaction_type = ?, last_interaction_details = ?"+
			" WHERE sub_key IN ("+placeholders(len(subKeys))+")")
	args := make([]interface{}, 0, len(subKeys)+3)
	args = append(args, interaction.TimeMS(), interaction.Source, interaction.Details())
	args = append(args, anySlice(subKeys)...)
	if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to update interaction metadata", err)
	}
	return nil
}

// subscriptionTx holds the subscribe-time transaction: subscription insert,
// pending-message migration and depth read share one database/sql tx so they
// commit or roll back as one unit.
type subscriptionTx struct {
	tx           *sql.Tx
	driverName   string
	subTable     string
	messageTable string
	done         bool
}

// Insert persists the subscription and populates its ID.
func (t *subscriptionTx) Insert(ctx context.Context, m *model.Subscription) error {
	cols := "sub_key, endpoint_id, topic_id, endpoint_type, has_gd, sub_pattern, " +
		"delivery_method, delivery_batch_size, max_delivery_retry, block_on_error, " +
		"unsub_on_close, ext_client_id, exclusive_key, is_active, creation_time"
	args := []interface{}{
		m.SubKey, m.EndpointID, m.TopicID, string(m.EndpointType), m.HasGD, m.SubPattern,
		m.DeliveryMethod, m.DeliveryBatchSize, m.MaxDeliveryRetry, m.BlockOnError,
		m.UnsubOnClose, m.ExtClientID, m.ExclusiveKey, m.IsActive, m.CreationTime,
	}

	if t.driverName == "postgres" {
		query := rebind(t.driverName,
			"INSERT INTO "+t.subTable+" ("+cols+") VALUES ("+placeholders(len(args))+") RETURNING id")
		if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&m.ID); err != nil {
			return mapInsertError(err)
		}
		return nil
	}

	query := "INSERT INTO " + t.subTable + " (" + cols + ") VALUES (" + placeholders(len(args)) + ")"
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return mapInsertError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to read subscription id", err)
	}
	m.ID = id
	return nil
}

// mapInsertError classifies unique-index violations by index name so callers
// can tell a subscriber-key collision from a duplicate subscription.
func mapInsertError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "uq_sub_key"):
		return subhub.NewErrorWithCause(subhub.ErrCodeKeyCollision, "subscriber key already exists", err)
	case strings.Contains(msg, "uq_exclusive"):
		return subhub.NewErrorWithCause(subhub.ErrCodeAlreadySubscribed, "endpoint already subscribed to topic", err)
	default:
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to insert subscription", err)
	}
}

// MigratePending claims all still-pending messages of the topic for the given
// subscriber key, stamping when each entered the queue. The conditional update
// touches only rows with no owner, so each pending message is claimed exactly
// once across concurrent subscribers.
func (t *subscriptionTx) MigratePending(ctx context.Context, topicID int64, subKey string, now int64) (int, error) {
	query := rebind(t.driverName,
		"UPDATE "+t.messageTable+" SET sub_key = ?, recv_time = ? WHERE topic_id = ? AND sub_key IS NULL")
	res, err := t.tx.ExecContext(ctx, query, subKey, now, topicID)
	if err != nil {
		return 0, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to migrate pending messages", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to count migrated messages", err)
	}
	return int(n), nil
}

// DepthDurable returns the durable queue depth as seen inside this
// transaction.
func (t *subscriptionTx) DepthDurable(ctx context.Context, subKey string) (int, error) {
	query := rebind(t.driverName,
		"SELECT COUNT(*) FROM "+t.messageTable+" WHERE sub_key = ? AND delivered_at IS NULL")
	var count int
	if err := t.tx.QueryRowContext(ctx, query, subKey).Scan(&count); err != nil {
		return 0, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to read queue depth", err)
	}
	return count, nil
}

// Commit commits the transaction.
func (t *subscriptionTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to commit subscribe transaction", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *subscriptionTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to roll back subscribe transaction", err)
	}
	return nil
}
