package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/coregx/subhub"
	"github.com/coregx/subhub/model"
)

// TopicRepository implements subhub.TopicRepository using Relica.
type TopicRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewTopicRepository creates a new TopicRepository with default table prefix.
func NewTopicRepository(sqlDB *sql.DB, driverName string) *TopicRepository {
	return &TopicRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "pubsub_"}
}

// NewTopicRepositoryWithPrefix creates a new TopicRepository with custom table prefix.
func NewTopicRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *TopicRepository {
	return &TopicRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *TopicRepository) tableName() string {
	return r.tablePrefix + "topic"
}

// Load retrieves a topic by ID.
func (r *TopicRepository) Load(ctx context.Context, id int64) (model.Topic, error) {
	var topic model.Topic
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&topic)
	if errors.Is(err, sql.ErrNoRows) {
		return topic, subhub.ErrNoData
	}
	if err != nil {
		return topic, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to load topic", err)
	}
	return topic, nil
}

// Save creates or updates a topic.
func (r *TopicRepository) Save(ctx context.Context, m model.Topic) (model.Topic, error) {
	if m.ID == 0 {
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to insert topic", err)
		}
		return m, nil
	}
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to update topic", err)
	}
	return m, nil
}

// GetByName retrieves a topic by its unique name.
func (r *TopicRepository) GetByName(ctx context.Context, name string) (model.Topic, error) {
	var topic model.Topic
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("name = ?", name).One(&topic)
	if errors.Is(err, sql.ErrNoRows) {
		return topic, subhub.ErrNoData
	}
	if err != nil {
		return topic, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to load topic by name", err)
	}
	return topic, nil
}

// ListActive retrieves all active topics.
func (r *TopicRepository) ListActive(ctx context.Context) ([]model.Topic, error) {
	var topics []model.Topic
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("is_active = ?", true).All(&topics)
	if err != nil {
		return nil, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to list topics", err)
	}
	if len(topics) == 0 {
		return nil, subhub.ErrNoData
	}
	return topics, nil
}
