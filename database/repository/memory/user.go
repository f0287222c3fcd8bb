package memoryRepo

import (
	"context"
	"time"

	userRepo "bidmarket/database/repository/user"
	"bidmarket/models"
)

type userStore struct{ *Store }

// Users returns the store's UserRepository.
func (s *Store) Users() userRepo.UserRepository { return userStore{s} }

func (r userStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	defer r.lock(ctx)()
	u, ok := r.users[id]
	if !ok {
		return nil, userRepo.ErrNotFound
	}
	return &u, nil
}

func (r userStore) Create(ctx context.Context, user *models.User) error {
	defer r.lock(ctx)()
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = *user
	return nil
}

func (r userStore) SetAdminDue(ctx context.Context, id string, amount float64) error {
	defer r.lock(ctx)()
	u, ok := r.users[id]
	if !ok {
		return userRepo.ErrNotFound
	}
	u.AdminDueAmount = amount
	r.users[id] = u
	return nil
}

func (r userStore) SetFCMToken(ctx context.Context, id, token string) error {
	defer r.lock(ctx)()
	u, ok := r.users[id]
	if !ok {
		return userRepo.ErrNotFound
	}
	u.FCMToken = token
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return nil
}
