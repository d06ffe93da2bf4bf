package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func copyUser(usr user.User) user.User {
	if usr.Roles != nil {
		usr.Roles = append([]string(nil), usr.Roles...)
	}
	if usr.IsActive != nil {
		usr.IsActive = core.BoolPtr(*usr.IsActive)
	}
	return usr
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, copyUser(*u))
	}
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]struct{}, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = struct{}{}
	}

	for _, usr := range repo.db.users {
		if _, ok := excluded[usr.ID]; ok {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr = copyUser(usr)
	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = &usr
	return copyUser(usr), nil
}

func hasRolePrefix(usr user.User, prefixes []string) bool {
	for _, prefix := range prefixes {
		if usr.RoleStartsWith(prefix) {
			return true
		}
	}
	return false
}

func matchesUser(usr user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.SchoolID != "" && usr.SchoolID != filter.SchoolID {
		return false
	}
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Name), search) &&
			!strings.Contains(strings.ToLower(usr.Username), search) &&
			!strings.Contains(strings.ToLower(usr.Email), search) {
			return false
		}
	}
	if len(filter.Roles) > 0 && !hasRolePrefix(usr, filter.Roles) {
		return false
	}
	if filter.IsActive != nil && usr.Active() != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

// compareUsers returns a negative number when a sorts before b on field.
func compareUsers(a, b user.User, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "is_active":
		switch {
		case a.Active() == b.Active():
			return 0
		case !a.Active():
			return -1
		}
		return 1
	case "created_at":
		return compareTimes(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	case "updated_at":
		return compareTimes(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano())
	case "last_login":
		return compareTimes(a.LastLogin.UnixNano(), b.LastLogin.UnixNano())
	}
	return 0
}

func compareTimes(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.query() {
		if matchesUser(usr, filter) {
			users = append(users, usr)
		}
	}

	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			if cmp := compareUsers(users[i], users[j], ord.Field); cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return copyUser(*usr), nil
		}
		return user.User{}, user.ErrNotFound
	}

	var match func(usr *user.User) bool
	switch {
	case filter.Username != "":
		match = func(usr *user.User) bool { return usr.Username == filter.Username }
	case filter.Email != "":
		match = func(usr *user.User) bool { return usr.Email == filter.Email }
	case len(filter.UsernameOrEmail) > 0:
		uname := filter.UsernameOrEmail[0]
		email := uname
		if len(filter.UsernameOrEmail) == 2 && filter.UsernameOrEmail[1] != "" {
			email = filter.UsernameOrEmail[1]
		}
		if uname == "" {
			uname = email
		}
		match = func(usr *user.User) bool { return usr.Username == uname || usr.Email == email }
	default:
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.db.users {
		if match(usr) {
			return copyUser(*usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	usr = copyUser(usr)
	repo.db.users[usr.ID] = &usr
	return copyUser(usr), nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, schoolID string, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var deleted int
	for _, id := range ids {
		if usr, ok := repo.db.users[id]; ok && usr.SchoolID == schoolID {
			delete(repo.db.users, id)
			deleted++
		}
	}
	return deleted, nil
}

func (repo *userRepository) CreateSchool(ctx context.Context, school user.School, _ ...core.DBExecutor) (user.School, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, s := range repo.db.schools {
		if s.Name == school.Name {
			return user.School{}, user.ErrSchoolExists
		}
	}
	school.ID = uuid.New().String()
	repo.db.schools[school.ID] = &school
	return school, nil
}

func (repo *userRepository) GetSchool(ctx context.Context, id string, _ ...core.DBExecutor) (user.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.schools[id]; ok {
		return *s, nil
	}
	return user.School{}, user.ErrSchoolNotFound
}
