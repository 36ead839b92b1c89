package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
)

const usersCollection = "users"

// UserRepository persists storefront accounts keyed by identity provider UID.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{base: pfirestore.NewBaseRepository[userDocument](provider, usersCollection)}, nil
}

func (r *UserRepository) Save(ctx context.Context, user domain.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}
	return r.base.Set(ctx, user.ID, newUserDocument(user))
}

// FindByID loads the account by UID. Documents written before timestamps were tracked fall back to
// Firestore metadata.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	user := doc.Data.toDomain(doc.ID)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = doc.CreateTime
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = doc.UpdateTime
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.Data.toDomain(doc.ID))
	}
	return users, nil
}

func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	return r.base.Delete(ctx, userID)
}

type userDocument struct {
	Username  string    `firestore:"username"`
	Email     string    `firestore:"email"`
	Role      string    `firestore:"role"`
	Verified  bool      `firestore:"verified"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newUserDocument(u domain.User) userDocument {
	return userDocument{
		Username:  strings.TrimSpace(u.Username),
		Email:     strings.TrimSpace(u.Email),
		Role:      string(u.Role),
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.User {
	return domain.User{
		ID:        id,
		Username:  d.Username,
		Email:     d.Email,
		Role:      domain.Role(d.Role),
		Verified:  d.Verified,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
