package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/config"
)

// ErrUserNotFound reports that the identity provider has no account for the UID.
var ErrUserNotFound = errors.New("auth: user not found")

var errFirebaseUninitialised = errors.New("firebase client not initialised")

// FirebaseVerifier verifies Firebase ID tokens and doubles as the user directory admins manage roles through.
// Roles are stored in the custom claim the Authenticator reads.
type FirebaseVerifier struct {
	client    *firebaseauth.Client
	timeout   time.Duration
	roleClaim string
}

// FirebaseOption customises FirebaseVerifier instances.
type FirebaseOption func(*FirebaseVerifier)

// WithFirebaseTimeout overrides the timeout used for Admin SDK calls.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithFirebaseRoleClaim sets the custom claim role changes are written to.
func WithFirebaseRoleClaim(claim string) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if claim = strings.TrimSpace(claim); claim != "" {
			v.roleClaim = claim
		}
	}
}

// NewFirebaseVerifier constructs a FirebaseVerifier backed by the Admin SDK.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}

	v := &FirebaseVerifier{client: client, timeout: defaultVerifyTimeout, roleClaim: defaultRoleClaim}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	var token *firebaseauth.Token
	err := v.call(ctx, func(ctx context.Context, c *firebaseauth.Client) (err error) {
		token, err = c.VerifyIDToken(ctx, idToken)
		return err
	})
	return token, err
}

func (v *FirebaseVerifier) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	var record *firebaseauth.UserRecord
	err := v.call(ctx, func(ctx context.Context, c *firebaseauth.Client) (err error) {
		record, err = c.GetUser(ctx, uid)
		return err
	})
	return record, err
}

// LookupUser loads the account and projects it onto the storefront user record.
func (v *FirebaseVerifier) LookupUser(ctx context.Context, uid string) (domain.User, error) {
	record, err := v.GetUser(ctx, uid)
	if err != nil {
		return domain.User{}, err
	}
	return userFromRecord(record, v.roleClaim), nil
}

// SetUserRole replaces the role claim and keeps any other custom claims. Sessions pick the change up on the
// next token refresh.
func (v *FirebaseVerifier) SetUserRole(ctx context.Context, uid string, role domain.Role) error {
	return v.call(ctx, func(ctx context.Context, c *firebaseauth.Client) error {
		record, err := c.GetUser(ctx, uid)
		if err != nil {
			return err
		}
		claims := make(map[string]interface{}, len(record.CustomClaims)+1)
		for k, val := range record.CustomClaims {
			claims[k] = val
		}
		claims[v.roleClaim] = string(role)
		return c.SetCustomUserClaims(ctx, uid, claims)
	})
}

func (v *FirebaseVerifier) DeleteUser(ctx context.Context, uid string) error {
	return v.call(ctx, func(ctx context.Context, c *firebaseauth.Client) error {
		return c.DeleteUser(ctx, uid)
	})
}

// call bounds fn by the configured timeout and folds provider not-found errors into ErrUserNotFound.
func (v *FirebaseVerifier) call(ctx context.Context, fn func(context.Context, *firebaseauth.Client) error) error {
	if v == nil || v.client == nil {
		return errFirebaseUninitialised
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	err := fn(ctx, v.client)
	if err != nil && firebaseauth.IsUserNotFound(err) {
		return fmt.Errorf("%w: %v", ErrUserNotFound, err)
	}
	return err
}

func userFromRecord(record *firebaseauth.UserRecord, roleClaim string) domain.User {
	if record == nil || record.UserInfo == nil {
		return domain.User{}
	}
	user := domain.User{
		ID:       record.UID,
		Username: strings.TrimSpace(record.DisplayName),
		Email:    strings.TrimSpace(record.Email),
		Role:     domain.RoleUser,
		Verified: record.EmailVerified,
	}
	if roles := rolesFromClaims(record.CustomClaims, roleClaim); len(roles) > 0 {
		identity := Identity{Roles: roles}
		user.Role = domain.Role(identity.PrimaryRole())
	}
	if meta := record.UserMetadata; meta != nil && meta.CreationTimestamp > 0 {
		user.CreatedAt = time.UnixMilli(meta.CreationTimestamp).UTC()
		user.UpdatedAt = user.CreatedAt
	}
	return user
}
