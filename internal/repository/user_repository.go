package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/cloudblog-api/internal/models"
	"github.com/noah-isme/cloudblog-api/pkg/cloudbase"
	appErrors "github.com/noah-isme/cloudblog-api/pkg/errors"
)

type modelStore interface {
	Find(ctx context.Context, model string, opts cloudbase.QueryOptions, dest interface{}) (*cloudbase.Page, error)
	FindByID(ctx context.Context, model, id string, dest interface{}) error
	Create(ctx context.Context, model string, data interface{}) (*cloudbase.OperationResult, error)
	Update(ctx context.Context, model, id string, data interface{}) (*cloudbase.OperationResult, error)
}

// UserRepository stores accounts in the CloudBase users model.
type UserRepository struct {
	store modelStore
	model string
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(store modelStore) *UserRepository {
	return &UserRepository{store: store, model: models.UsersModel}
}

// FindByEmail returns the user registered with email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByPhone returns the user registered with phone.
func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.findOne(ctx, "phone", phone)
}

// FindByIdentifier looks the user up by email when given, else by phone.
func (r *UserRepository) FindByIdentifier(ctx context.Context, email, phone string) (*models.User, error) {
	if email != "" {
		return r.FindByEmail(ctx, email)
	}
	return r.FindByPhone(ctx, phone)
}

func (r *UserRepository) findOne(ctx context.Context, field, value string) (*models.User, error) {
	var users []models.User
	_, err := r.store.Find(ctx, r.model, cloudbase.QueryOptions{
		Where: cloudbase.Conditions(cloudbase.Condition{Field: field, Op: cloudbase.OpEq, Value: value}),
		Limit: 1,
	}, &users)
	if err != nil {
		return nil, fmt.Errorf("find user by %s: %w", field, err)
	}
	if len(users) == 0 {
		return nil, appErrors.ErrNotFound
	}
	return &users[0], nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.store.FindByID(ctx, r.model, id, &user); err != nil {
		if cloudbase.IsNotFound(err) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	if user.ID == "" {
		return nil, appErrors.ErrNotFound
	}
	return &user, nil
}

// Create stores user and assigns the generated id.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	res, err := r.store.Create(ctx, r.model, user)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if len(res.IDs) > 0 {
		user.ID = res.IDs[0]
	}
	return nil
}

// Update applies fields to the user record.
func (r *UserRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if _, err := r.store.Update(ctx, r.model, id, fields); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}
