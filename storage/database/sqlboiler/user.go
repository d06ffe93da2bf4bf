package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/sqlboiler/v4/types"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const (
	userTable   = `"user"`
	schoolTable = "school"
)

var userColumns = []string{
	"id", "school_id", "name", "username", "email", "is_active", "roles",
	"password_hash", "created_at", "updated_at", "last_login",
}

type userRow struct {
	ID           string            `boil:"id"`
	SchoolID     null.String       `boil:"school_id"`
	Name         null.String       `boil:"name"`
	Username     null.String       `boil:"username"`
	Email        null.String       `boil:"email"`
	IsActive     null.Bool         `boil:"is_active"`
	Roles        types.StringArray `boil:"roles"`
	PasswordHash null.Bytes        `boil:"password_hash"`
	CreatedAt    null.Time         `boil:"created_at"`
	UpdatedAt    null.Time         `boil:"updated_at"`
	LastLogin    null.Time         `boil:"last_login"`
}

type schoolRow struct {
	ID        string    `boil:"id"`
	Name      string    `boil:"name"`
	CreatedAt null.Time `boil:"created_at"`
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{baseRepository{exec: exec}}
}

func (repo userRepository) boil(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		SchoolID:     null.NewString(usr.SchoolID, usr.SchoolID != ""),
		Name:         null.NewString(usr.Name, usr.Name != ""),
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     null.BoolFromPtr(usr.IsActive),
		Roles:        usr.Roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unboil(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		SchoolID:     row.SchoolID.String,
		Name:         row.Name.String,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive.Ptr(),
		Roles:        row.Roles,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
		LastLogin:    row.LastLogin.Time,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	return usr
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	mods := []qm.QueryMod{
		qm.Select("username", "email"),
		qm.From(userTable),
		qm.Expr(qm.Where("username = ?", username), qm.Or("email = ?", email)),
	}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		mods = append(mods, qm.WhereIn("id NOT IN ?", interfaces(ids)...))
	}
	mods = append(mods, qm.Limit(1))

	var row struct {
		Username null.String `boil:"username"`
		Email    null.String `boil:"email"`
	}
	err := NewQuery(mods...).Bind(ctx, repo.getExec(exec), &row)
	switch {
	case errors.Cause(err) == sql.ErrNoRows:
		return nil
	case err != nil:
		return errors.Wrap(err, "checking user uniqueness")
	case row.Username.String == username:
		return user.ErrUsernameExists
	case row.Email.String == email:
		return user.ErrEmailExists
	}
	return user.ErrUserExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.boil(usr)

	_, err := queries.Raw(
		`INSERT INTO "user" (id, school_id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.ID, row.SchoolID, row.Name, row.Username, row.Email, row.IsActive, row.Roles,
		row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		if constraint, ok := violatedConstraint(err); ok {
			switch constraint {
			case "user_username_key":
				return user.User{}, user.ErrUsernameExists
			case "user_email_key":
				return user.User{}, user.ErrEmailExists
			}
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	mods := []qm.QueryMod{qm.Select(userColumns...), qm.From(userTable)}

	if filter != nil {
		if filter.SchoolID != "" {
			mods = append(mods, qm.Where("school_id = ?", filter.SchoolID))
		}
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			mods = append(mods, qm.Expr(qm.Where("name ILIKE ? OR username ILIKE ? OR email ILIKE ?", val, val, val)))
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleMods := make([]qm.QueryMod, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleMods = append(roleMods, qm.Or2(qm.Where(
					fmt.Sprintf(`id IN (SELECT id FROM %s, UNNEST(roles) user_role WHERE user_role ILIKE ?)`, userTable),
					role+"%",
				)))
			}
			mods = append(mods, qm.Expr(roleMods...))
		}
		if filter.IsActive != nil {
			mods = append(mods, qm.Where("is_active = ?", *filter.IsActive))
		}
		if !filter.CreatedFrom.IsZero() {
			mods = append(mods, qm.Where("created_at >= ?", filter.CreatedFrom.UTC()))
		}
		if !filter.CreatedTo.IsZero() {
			mods = append(mods, qm.Where("created_at <= ?", filter.CreatedTo.UTC()))
		}
	}
	mods = append(mods, orderByMod(ordering, "id"))

	var rows []userRow
	if err := NewQuery(mods...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unboil(row))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	mods := []qm.QueryMod{qm.Select(userColumns...), qm.From(userTable)}

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		mods = append(mods, qm.Where("id = ?", filter.ID))
	case filter.Username != "":
		mods = append(mods, qm.Where("username = ?", filter.Username))
	case filter.Email != "":
		mods = append(mods, qm.Where("email = ?", filter.Email))
	case len(filter.UsernameOrEmail) > 0:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		mods = append(mods, qm.Expr(qm.Where("username = ?", uname), qm.Or("email = ?", email)))
	default:
		return user.User{}, user.ErrNotFound
	}
	mods = append(mods, qm.Limit(1))

	var row userRow
	if err := NewQuery(mods...).Bind(ctx, repo.getExec(exec), &row); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := repo.boil(usr)
	affected, err := update(ctx, repo.getExec(exec), map[string]interface{}{
		"name":          row.Name,
		"username":      row.Username,
		"email":         row.Email,
		"is_active":     row.IsActive,
		"roles":         row.Roles,
		"password_hash": row.PasswordHash,
		"updated_at":    row.UpdatedAt,
		"last_login":    row.LastLogin,
	}, qm.From(userTable), qm.Where("id = ?", usr.ID))
	if err != nil {
		if constraint, ok := violatedConstraint(err); ok {
			if constraint == "user_email_key" {
				return user.User{}, user.ErrEmailExists
			}
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if affected == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.unboil(row), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, schoolID string, ids []string, exec ...core.DBExecutor) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	cnt, err := deleteAll(ctx, repo.getExec(exec),
		qm.From(userTable),
		qm.Where("school_id = ?", schoolID),
		qm.WhereIn("id IN ?", interfaces(valid)...),
	)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}

func (repo userRepository) CreateSchool(ctx context.Context, school user.School, exec ...core.DBExecutor) (user.School, error) {
	school.ID = uuid.New().String()
	_, err := queries.Raw(
		"INSERT INTO school (id, name, created_at) VALUES ($1, $2, $3)",
		school.ID, school.Name, school.CreatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		if _, ok := violatedConstraint(err); ok {
			return user.School{}, user.ErrSchoolExists
		}
		return user.School{}, errors.Wrap(err, "inserting school")
	}
	return school, nil
}

func (repo userRepository) GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (user.School, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.School{}, user.ErrSchoolNotFound
	}

	var row schoolRow
	err := NewQuery(
		qm.Select("id", "name", "created_at"),
		qm.From(schoolTable),
		qm.Where("id = ?", id),
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return user.School{}, user.ErrSchoolNotFound
		}
		return user.School{}, errors.Wrap(err, "finding school")
	}
	return user.School{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt.Time}, nil
}
