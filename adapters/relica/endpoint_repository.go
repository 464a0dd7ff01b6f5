package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/coregx/subhub"
	"github.com/coregx/subhub/model"
)

// EndpointRepository implements subhub.EndpointRepository using Relica.
type EndpointRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewEndpointRepository creates a new EndpointRepository with default table prefix.
func NewEndpointRepository(sqlDB *sql.DB, driverName string) *EndpointRepository {
	return &EndpointRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "pubsub_"}
}

// NewEndpointRepositoryWithPrefix creates a new EndpointRepository with custom table prefix.
func NewEndpointRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *EndpointRepository {
	return &EndpointRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *EndpointRepository) tableName() string {
	return r.tablePrefix + "endpoint"
}

// Load retrieves an endpoint by ID.
func (r *EndpointRepository) Load(ctx context.Context, id int64) (model.Endpoint, error) {
	var endpoint model.Endpoint
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&endpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return endpoint, subhub.ErrNoData
	}
	if err != nil {
		return endpoint, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to load endpoint", err)
	}
	return endpoint, nil
}

// Save creates or updates an endpoint.
func (r *EndpointRepository) Save(ctx context.Context, m model.Endpoint) (model.Endpoint, error) {
	if m.ID == 0 {
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to insert endpoint", err)
		}
		return m, nil
	}
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to update endpoint", err)
	}
	return m, nil
}

// ListActive retrieves all active endpoints.
func (r *EndpointRepository) ListActive(ctx context.Context) ([]model.Endpoint, error) {
	var endpoints []model.Endpoint
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("is_active = ?", true).All(&endpoints)
	if err != nil {
		return nil, subhub.NewErrorWithCause(subhub.ErrCodePersistence, "failed to list endpoints", err)
	}
	if len(endpoints) == 0 {
		return nil, subhub.ErrNoData
	}
	return endpoints, nil
}
