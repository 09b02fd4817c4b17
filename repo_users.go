package fitauth

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the store contract for account management. It is a superset of
// UserStore: the authentication pipeline depends on the narrow interface,
// the controllers on this one.
type Users interface {
	UserStore

	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, name string) (*User, error)
	SetRole(ctx context.Context, id, roleID uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error

	GetRoleBySlug(ctx context.Context, slug string) (*Role, error)
	EnsureRoles(ctx context.Context, slugs ...string) error
}

type users struct {
	db *bun.DB
}

var (
	_ Users     = (*users)(nil)
	_ UserStore = (*users)(nil)
)

// NewUsersRepository returns the bun-backed user store.
func NewUsersRepository(db *bun.DB) Users {
	return &users{db: db}
}

// GetAuthUser loads the minimal identity projection: only what
// authentication and authorization need, never the credential hash.
func (r *users) GetAuthUser(ctx context.Context, id uuid.UUID) (*AuthUser, error) {
	user := new(User)
	err := r.db.NewSelect().
		Model(user).
		Column("usr.id", "usr.name", "usr.email", "usr.is_active", "usr.is_superuser", "usr.role_id", "usr.created_at").
		Relation("Role").
		Where("usr.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load auth user")
	}
	return user.AuthProjection(), nil
}

func (r *users) GetCredentialsByEmail(ctx context.Context, email string) (*UserCredentials, error) {
	user := new(User)
	err := r.db.NewSelect().
		Model(user).
		Column("usr.id", "usr.email", "usr.password_hash", "usr.is_active").
		Where("lower(usr.email) = lower(?)", email).
		Scan(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load credentials by email")
	}
	return user.Credentials(), nil
}

func (r *users) GetCredentialsByID(ctx context.Context, id uuid.UUID) (*UserCredentials, error) {
	user := new(User)
	err := r.db.NewSelect().
		Model(user).
		Column("usr.id", "usr.email", "usr.password_hash", "usr.is_active").
		Where("usr.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load credentials by id")
	}
	return user.Credentials(), nil
}

func (r *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user := new(User)
	err := r.db.NewSelect().
		Model(user).
		Relation("Role").
		Where("usr.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load user by id")
	}
	return user, nil
}

func (r *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	user := new(User)
	err := r.db.NewSelect().
		Model(user).
		Relation("Role").
		Where("lower(usr.email) = lower(?)", email).
		Scan(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load user by email")
	}
	return user, nil
}

func (r *users) Create(ctx context.Context, user *User) (*User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if _, err := r.db.NewInsert().Model(user).Exec(ctx); err != nil {
		if isDuplicateErr(err) {
			return nil, ConflictError("a user with this email already exists", TextCodeDuplicateEmail)
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create user")
	}
	return user, nil
}

func (r *users) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	res, err := r.db.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", hash).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to update user password")
	}
	return ensureRowAffected(res)
}

func (r *users) UpdateProfile(ctx context.Context, id uuid.UUID, name string) (*User, error) {
	res, err := r.db.NewUpdate().
		Model((*User)(nil)).
		Set("name = ?", name).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update user profile")
	}
	if err := ensureRowAffected(res); err != nil {
		return nil, err
	}

	user := new(User)
	if err := r.db.NewSelect().Model(user).Relation("Role").Where("usr.id = ?", id).Scan(ctx); err != nil {
		return nil, wrapStoreErr(err, "failed to reload user after update")
	}
	return user, nil
}

// SetRole performs the single atomic update that reassigns the user's role.
func (r *users) SetRole(ctx context.Context, id, roleID uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*User)(nil)).
		Set("role_id = ?", roleID).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to assign user role")
	}
	return ensureRowAffected(res)
}

func (r *users) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = current_timestamp").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to update user status")
	}
	return ensureRowAffected(res)
}

func (r *users) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete user")
	}
	return ensureRowAffected(res)
}

func (r *users) GetRoleBySlug(ctx context.Context, slug string) (*Role, error) {
	role := new(Role)
	err := r.db.NewSelect().
		Model(role).
		Where("rol.slug = ?", slug).
		Scan(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load role by slug")
	}
	return role, nil
}

// EnsureRoles creates any missing roles. Used at bootstrap; existing rows
// are left untouched.
func (r *users) EnsureRoles(ctx context.Context, slugs ...string) error {
	for _, slug := range slugs {
		role := &Role{
			ID:   uuid.New(),
			Slug: slug,
			Name: strings.ReplaceAll(slug, "-", " "),
		}
		_, err := r.db.NewInsert().
			Model(role).
			On("CONFLICT (slug) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to ensure role")
		}
	}
	return nil
}

func wrapStoreErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrIdentityNotFound
	}
	return errors.Wrap(err, errors.CategoryInternal, msg)
}

func ensureRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to inspect update result")
	}
	if n == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// isDuplicateErr matches unique-constraint violations across the supported
// drivers (sqlite for tests, postgres in deployment).
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
