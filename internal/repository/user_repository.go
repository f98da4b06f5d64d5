package repository

import (
	"context"
	"database/sql"
	"strings"
)

// UserRepo reads the users table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// TelegramIDsByPatient implements UserStore.  The booking form stores the
// patient's name and phone rather than a user reference, so the oldest
// account matching both wins.
func (r *UserRepo) TelegramIDsByPatient(ctx context.Context, fullName, phone string) ([]int64, error) {
	fullName, phone = strings.TrimSpace(fullName), strings.TrimSpace(phone)
	if fullName == "" || phone == "" {
		return []int64{}, nil
	}
	return queryInt64s(ctx, r.DB,
		`SELECT tg_id FROM users
WHERE LOWER(full_name) = LOWER(?) AND phone = ? AND tg_id IS NOT NULL AND tg_id <> 0
ORDER BY id LIMIT 1`, fullName, phone)
}
