package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"chat-relay/domain"
	apperrors "chat-relay/errors"
)

// addParticipantRetries bounds the optimistic-conflict retry loop.
const addParticipantRetries = 5

type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) RoomRepository {
	return RoomRepository{db: db, log: log}
}

func roomKey(id string) []byte {
	return []byte("room:" + id)
}

// Create stores a room, hashing the password when one is supplied.
func (r RoomRepository) Create(room domain.Room, password string) (domain.Room, error) {
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Room{}, err
		}
		room.HasPassword = true
		room.PasswordHash = string(hash)
	}
	bytes, err := json.Marshal(room)
	if err != nil {
		return domain.Room{}, err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(room.ID), bytes)
	})
	return room, err
}

func (r RoomRepository) FindByID(id string) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		return getRoom(txn, id, &room)
	})
	if isKeyNotFound(err) {
		return domain.Room{}, notFound("room", id)
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("room %s lookup: %w", id, err)
	}
	return room, nil
}

// AddParticipant adds the user to the room if absent, checking the room
// password for protected rooms. The read-modify-write runs in one Badger
// transaction, so the add is atomic per room; a serialization conflict with
// a concurrent join is retried.
func (r RoomRepository) AddParticipant(roomID, userID, password string) (domain.Room, error) {
	var room domain.Room
	for attempt := 0; attempt < addParticipantRetries; attempt++ {
		err := r.db.Update(func(txn *badger.Txn) error {
			if err := getRoom(txn, roomID, &room); err != nil {
				return err
			}
			if room.HasPassword {
				if err := bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password)); err != nil {
					return apperrors.ErrBadPassword
				}
			}
			if lo.Contains(room.ParticipantIDs, userID) {
				return nil
			}
			room.ParticipantIDs = append(room.ParticipantIDs, userID)
			bytes, err := json.Marshal(room)
			if err != nil {
				return err
			}
			return txn.Set(roomKey(roomID), bytes)
		})
		if errors.Is(err, badger.ErrConflict) {
			r.log.Debug("Join conflict, retrying", "roomId", roomID, "userId", userID)
			continue
		}
		if isKeyNotFound(err) {
			return domain.Room{}, notFound("room", roomID)
		}
		if err != nil {
			return domain.Room{}, err
		}
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("room %s join: too many conflicts", roomID)
}

func getRoom(txn *badger.Txn, id string, room *domain.Room) error {
	item, err := txn.Get(roomKey(id))
	if err != nil {
		return err
	}
	return item.Value(func(value []byte) error {
		return json.Unmarshal(value, room)
	})
}
