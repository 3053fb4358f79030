package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
)

type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) UserRepository {
	return UserRepository{db: db, log: log}
}

func userKey(id string) []byte {
	return []byte("user:id:" + id)
}

// userEmailKey is the secondary index from email to user id.
func userEmailKey(email string) []byte {
	return []byte("user:email:" + email)
}

func (u UserRepository) Save(user domain.User) error {
	bytes, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return u.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(userKey(user.ID), bytes); err != nil {
			return err
		}
		return txn.Set(userEmailKey(user.Email), []byte(user.ID))
	})
}

func (u UserRepository) FindByID(id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &user)
		})
	})
	if isKeyNotFound(err) {
		return domain.User{}, notFound("user", id)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s lookup: %w", id, err)
	}
	return user, nil
}

func (u UserRepository) FindByEmail(email string) (domain.User, error) {
	var id string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userEmailKey(email))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			id = string(value)
			return nil
		})
	})
	if isKeyNotFound(err) {
		return domain.User{}, notFound("user", email)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s lookup: %w", email, err)
	}
	return u.FindByID(id)
}
