package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/repositories"
)

var (
	// ErrUserInvalidInput indicates a missing user id or an unknown role.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates neither the store nor the identity provider knows the account.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserForbidden indicates the caller is not an admin.
	ErrUserForbidden = errors.New("user: forbidden")
	// ErrUserSelfModification is returned when an admin changes the role of, or deletes, their own account.
	ErrUserSelfModification = errors.New("user: cannot modify own account")
	// ErrUserDirectory indicates the identity provider rejected a role change or deletion.
	ErrUserDirectory = errors.New("user: identity provider error")
	// ErrUserUnavailable indicates the user store could not be reached.
	ErrUserUnavailable = errors.New("user: store unavailable")
)

// UserDirectory is the identity provider side of account management.
type UserDirectory interface {
	LookupUser(ctx context.Context, uid string) (domain.User, error)
	SetUserRole(ctx context.Context, uid string, role domain.Role) error
	DeleteUser(ctx context.Context, uid string) error
}

// UserServiceDeps bundles the dependencies required to construct a user service instance.
type UserServiceDeps struct {
	Users      repositories.UserRepository
	UnitOfWork repositories.UnitOfWork
	// Directory is optional; without it accounts exist only once recorded through SyncUser.
	Directory UserDirectory
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users      repositories.UserRepository
	unitOfWork repositories.UnitOfWork
	directory  UserDirectory
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &userService{
		users:      deps.Users,
		unitOfWork: unit,
		directory:  deps.Directory,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

func (s *userService) SyncUser(ctx context.Context, actor Actor) (User, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	var synced User
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.users.FindByID(txCtx, actor.ID)
		if err == nil {
			if actor.Email == "" || actor.Email == user.Email {
				synced = user
				return nil
			}
			user.Email = actor.Email
			user.UpdatedAt = s.clock()
			synced = user
			return mapUserError(s.users.Save(txCtx, user))
		}
		if !isNotFound(err) {
			return mapUserError(err)
		}

		now := s.clock()
		user = User{
			ID:        actor.ID,
			Username:  usernameFromEmail(actor.Email),
			Email:     actor.Email,
			Role:      actor.Role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if !user.Role.Valid() {
			user.Role = domain.RoleUser
		}
		synced = user
		return mapUserError(s.users.Save(txCtx, user))
	})
	if err != nil {
		return User{}, err
	}
	return synced, nil
}

func (s *userService) ListUsers(ctx context.Context, actor Actor) ([]User, error) {
	if !actor.IsAdmin() {
		return nil, ErrUserForbidden
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, mapUserError(err)
	}
	return users, nil
}

func (s *userService) GetUser(ctx context.Context, actor Actor, userID string) (User, error) {
	if !actor.IsAdmin() {
		return User{}, ErrUserForbidden
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	return s.loadUser(ctx, userID)
}

func (s *userService) UpdateUserRole(ctx context.Context, cmd UpdateUserRoleCommand) (User, error) {
	if !cmd.Actor.IsAdmin() {
		return User{}, ErrUserForbidden
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if !cmd.Role.Valid() {
		return User{}, fmt.Errorf("%w: role must be one of user, seller, admin", ErrUserInvalidInput)
	}
	if userID == cmd.Actor.ID {
		return User{}, ErrUserSelfModification
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if user.Role == cmd.Role {
		return user, nil
	}
	previous := user.Role

	if s.directory != nil {
		if err := s.directory.SetUserRole(ctx, userID, cmd.Role); err != nil {
			return User{}, mapDirectoryError(err)
		}
	}
	user.Role = cmd.Role
	user.UpdatedAt = s.clock()
	if err := s.users.Save(ctx, user); err != nil {
		return User{}, mapUserError(err)
	}
	s.logger(ctx, "user.role_updated", map[string]any{
		"userID":   userID,
		"actorID":  cmd.Actor.ID,
		"previous": string(previous),
		"role":     string(cmd.Role),
	})
	return user, nil
}

func (s *userService) DeleteUser(ctx context.Context, actor Actor, userID string) (User, error) {
	if !actor.IsAdmin() {
		return User{}, ErrUserForbidden
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if userID == actor.ID {
		return User{}, ErrUserSelfModification
	}

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if s.directory != nil {
		if err := s.directory.DeleteUser(ctx, userID); err != nil && !errors.Is(err, auth.ErrUserNotFound) {
			return User{}, mapDirectoryError(err)
		}
	}
	if err := s.users.Delete(ctx, userID); err != nil && !isNotFound(err) {
		return User{}, mapUserError(err)
	}
	s.logger(ctx, "user.deleted", map[string]any{"userID": userID, "actorID": actor.ID})
	return user, nil
}

// loadUser reads the stored account and, when missing, seeds it from the identity provider.
func (s *userService) loadUser(ctx context.Context, userID string) (User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !isNotFound(err) || s.directory == nil {
		return User{}, mapUserError(err)
	}

	fresh, err := s.directory.LookupUser(ctx, userID)
	if err != nil {
		return User{}, mapDirectoryError(err)
	}
	now := s.clock()
	if fresh.CreatedAt.IsZero() {
		fresh.CreatedAt = now
	}
	fresh.UpdatedAt = now
	if fresh.Username == "" {
		fresh.Username = usernameFromEmail(fresh.Email)
	}
	if err := s.users.Save(ctx, fresh); err != nil {
		return User{}, mapUserError(err)
	}
	return fresh, nil
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return local
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func mapDirectoryError(err error) error {
	if errors.Is(err, auth.ErrUserNotFound) {
		return fmt.Errorf("%w: %v", ErrUserNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrUserDirectory, err)
}

func mapUserError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUserUnavailable, err)
		}
	}
	return err
}
