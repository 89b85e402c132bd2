package attributes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/launchpadhq/experiment-engine/internal/domain/providers"
	"github.com/launchpadhq/experiment-engine/internal/infrastructure/clients/postgres"
	apperrors "github.com/launchpadhq/experiment-engine/pkg/errors"
)

// PostgresSource implements UserAttributeSource over a user_attributes
// table holding one jsonb document per user.
type PostgresSource struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewPostgresSource creates a new attribute source backed by Postgres
func NewPostgresSource(client *postgres.Client) providers.UserAttributeSource {
	return &PostgresSource{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Get retrieves the attribute map for a user
func (s *PostgresSource) Get(ctx context.Context, userID string) (map[string]interface{}, error) {
	query, args, err := s.db.Select("attributes").
		From("user_attributes").
		Where(goqu.Ex{"user_id": userID}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var raw []byte
	err = s.client.DB().QueryRowContext(ctx, query, args...).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no attributes for user %s", userID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get user attributes", err)
	}

	attributes := make(map[string]interface{})
	if err := json.Unmarshal(raw, &attributes); err != nil {
		return nil, apperrors.NewInternalError("failed to unmarshal user attributes", err)
	}

	return attributes, nil
}
