package repositories

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	apperrors "chat-relay/errors"
)

func Test_AddParticipant(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openDB(t), slog.Default())

	_, err := repository.Create(domain.Room{ID: "r1", Name: "general", Creator: "alice",
		ParticipantIDs: []string{"alice"}}, "")
	req.NoError(err)

	room, err := repository.AddParticipant("r1", "bob", "")
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob"}, room.ParticipantIDs)

	// Adding twice is a no-op
	room, err = repository.AddParticipant("r1", "bob", "")
	req.NoError(err)
	req.Len(room.ParticipantIDs, 2)

	_, err = repository.AddParticipant("ghost", "bob", "")
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func Test_AddParticipant_PasswordProtected(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openDB(t), slog.Default())

	created, err := repository.Create(domain.Room{ID: "r1", Name: "private", Creator: "alice",
		ParticipantIDs: []string{"alice"}}, "s3cret")
	req.NoError(err)
	req.True(created.HasPassword)
	req.NotEqual("s3cret", created.PasswordHash, "password must be stored hashed")

	_, err = repository.AddParticipant("r1", "bob", "wrong")
	req.ErrorIs(err, apperrors.ErrBadPassword)

	room, err := repository.AddParticipant("r1", "bob", "s3cret")
	req.NoError(err)
	req.Contains(room.ParticipantIDs, "bob")
}
