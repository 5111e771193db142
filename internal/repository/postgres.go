package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/qandu/ai-relay/internal/crypto"
	"github.com/qandu/ai-relay/internal/domain"
)

// PostgresEndpointRepository stores endpoints with the credential encrypted
// at rest. Rows are decrypted on read so the rest of the core only ever sees
// plaintext credentials in memory.
type PostgresEndpointRepository struct {
	db  *sql.DB
	enc *crypto.Encryptor
}

func NewPostgresEndpointRepository(db *sql.DB, enc *crypto.Encryptor) *PostgresEndpointRepository {
	return &PostgresEndpointRepository{db: db, enc: enc}
}

const endpointColumns = `id, name, provider_type, base_url, credential_enc, enabled, owner_id, created_at, updated_at`

func (r *PostgresEndpointRepository) GetByID(ctx context.Context, id string) (*domain.Endpoint, error) {
	query := `
		SELECT ` + endpointColumns + `
		FROM ai_endpoints
		WHERE id = $1
	`

	endpoint, err := r.scanEndpoint(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query endpoint: %w", err)
	}

	return endpoint, nil
}

func (r *PostgresEndpointRepository) List(ctx context.Context) ([]*domain.Endpoint, error) {
	query := `
		SELECT ` + endpointColumns + `
		FROM ai_endpoints
		ORDER BY created_at DESC
	`
	return r.queryEndpoints(ctx, query)
}

func (r *PostgresEndpointRepository) ListEnabled(ctx context.Context) ([]*domain.Endpoint, error) {
	query := `
		SELECT ` + endpointColumns + `
		FROM ai_endpoints
		WHERE enabled = true
		ORDER BY created_at DESC
	`
	return r.queryEndpoints(ctx, query)
}

func (r *PostgresEndpointRepository) queryEndpoints(ctx context.Context, query string, args ...any) ([]*domain.Endpoint, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*domain.Endpoint
	for rows.Next() {
		endpoint, err := r.scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresEndpointRepository) scanEndpoint(row rowScanner) (*domain.Endpoint, error) {
	var endpoint domain.Endpoint
	var providerType string
	var baseURL, credentialEnc, ownerID sql.NullString

	err := row.Scan(
		&endpoint.ID,
		&endpoint.Name,
		&providerType,
		&baseURL,
		&credentialEnc,
		&endpoint.Enabled,
		&ownerID,
		&endpoint.CreatedAt,
		&endpoint.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	endpoint.ProviderType = domain.ProviderType(providerType)
	endpoint.BaseURL = baseURL.String
	endpoint.OwnerID = ownerID.String

	if credentialEnc.Valid && credentialEnc.String != "" {
		credential, err := r.enc.Decrypt(credentialEnc.String)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential for endpoint %s: %w", endpoint.ID, err)
		}
		endpoint.Credential = credential
	}

	return &endpoint, nil
}

func (r *PostgresEndpointRepository) Create(ctx context.Context, endpoint *domain.Endpoint) error {
	credentialEnc, err := r.encryptCredential(endpoint.Credential)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ai_endpoints (id, name, provider_type, base_url, credential_enc, enabled, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		endpoint.ID,
		endpoint.Name,
		string(endpoint.ProviderType),
		nullString(endpoint.BaseURL),
		credentialEnc,
		endpoint.Enabled,
		nullString(endpoint.OwnerID),
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert endpoint: %w", err)
	}

	return nil
}

func (r *PostgresEndpointRepository) Update(ctx context.Context, endpoint *domain.Endpoint) error {
	credentialEnc, err := r.encryptCredential(endpoint.Credential)
	if err != nil {
		return err
	}

	query := `
		UPDATE ai_endpoints
		SET name = $2, provider_type = $3, base_url = $4, credential_enc = $5,
		    enabled = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		endpoint.ID,
		endpoint.Name,
		string(endpoint.ProviderType),
		nullString(endpoint.BaseURL),
		credentialEnc,
		endpoint.Enabled,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update endpoint: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrEndpointNotFound
	}

	return nil
}

// Delete removes an endpoint. Dependent model rows are removed by the
// ON DELETE CASCADE constraint on ai_endpoint_models.endpoint_id.
func (r *PostgresEndpointRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ai_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrEndpointNotFound
	}

	return nil
}

func (r *PostgresEndpointRepository) encryptCredential(credential string) (sql.NullString, error) {
	if credential == "" {
		return sql.NullString{}, nil
	}
	enc, err := r.enc.Encrypt(credential)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encrypt credential: %w", err)
	}
	return sql.NullString{String: enc, Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type PostgresModelRepository struct {
	db *sql.DB
}

func NewPostgresModelRepository(db *sql.DB) *PostgresModelRepository {
	return &PostgresModelRepository{db: db}
}

const modelColumns = `id, endpoint_id, model_id, model_name, enabled, created_at, updated_at`

func (r *PostgresModelRepository) GetByID(ctx context.Context, id string) (*domain.Model, error) {
	query := `
		SELECT ` + modelColumns + `
		FROM ai_endpoint_models
		WHERE id = $1
	`

	var model domain.Model
	var modelName sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&model.ID,
		&model.EndpointID,
		&model.ModelID,
		&modelName,
		&model.Enabled,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrModelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query model: %w", err)
	}

	model.ModelName = modelName.String
	return &model, nil
}

func (r *PostgresModelRepository) ListByEndpoint(ctx context.Context, endpointID string) ([]*domain.Model, error) {
	query := `
		SELECT ` + modelColumns + `
		FROM ai_endpoint_models
		WHERE endpoint_id = $1
		ORDER BY model_id ASC
	`
	return r.queryModels(ctx, query, endpointID)
}

func (r *PostgresModelRepository) ListEnabledByEndpoints(ctx context.Context, ids []string) ([]*domain.Model, error) {
	query := `
		SELECT ` + modelColumns + `
		FROM ai_endpoint_models
		WHERE enabled = true AND endpoint_id = ANY($1)
		ORDER BY model_id ASC
	`
	return r.queryModels(ctx, query, pq.Array(ids))
}

func (r *PostgresModelRepository) queryModels(ctx context.Context, query string, args ...any) ([]*domain.Model, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	var models []*domain.Model
	for rows.Next() {
		var model domain.Model
		var modelName sql.NullString
		err := rows.Scan(
			&model.ID,
			&model.EndpointID,
			&model.ModelID,
			&modelName,
			&model.Enabled,
			&model.CreatedAt,
			&model.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		model.ModelName = modelName.String
		models = append(models, &model)
	}

	return models, rows.Err()
}

func (r *PostgresModelRepository) InsertIfAbsent(ctx context.Context, models []*domain.Model) (int, error) {
	query := `
		INSERT INTO ai_endpoint_models (id, endpoint_id, model_id, model_name, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (endpoint_id, model_id) DO NOTHING
	`

	inserted := 0
	for _, model := range models {
		result, err := r.db.ExecContext(ctx, query,
			model.ID,
			model.EndpointID,
			model.ModelID,
			nullString(model.ModelName),
			model.Enabled,
			model.CreatedAt,
			model.UpdatedAt,
		)
		if err != nil {
			return inserted, fmt.Errorf("upsert model %s: %w", model.ModelID, err)
		}
		if rows, _ := result.RowsAffected(); rows > 0 {
			inserted++
		}
	}

	return inserted, nil
}

func (r *PostgresModelRepository) Update(ctx context.Context, model *domain.Model) error {
	query := `
		UPDATE ai_endpoint_models
		SET model_name = $2, enabled = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		model.ID,
		nullString(model.ModelName),
		model.Enabled,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrModelNotFound
	}

	return nil
}

func (r *PostgresModelRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ai_endpoint_models WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrModelNotFound
	}

	return nil
}
