package repositories

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	apperrors "chat-relay/errors"
)

func Test_UserLookup(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openDB(t), slog.Default())

	alice := domain.User{ID: "u1", Name: "Alice", Email: "alice@example.com"}
	req.NoError(repository.Save(alice))

	fetched, err := repository.FindByID("u1")
	req.NoError(err)
	req.Equal(alice, fetched)

	fetched, err = repository.FindByEmail("alice@example.com")
	req.NoError(err)
	req.Equal(alice, fetched)

	_, err = repository.FindByID("ghost")
	req.ErrorIs(err, apperrors.ErrNotFound)
	_, err = repository.FindByEmail("ghost@example.com")
	req.ErrorIs(err, apperrors.ErrNotFound)
}

func Test_FileLookup(t *testing.T) {
	req := require.New(t)
	repository := NewFileRepository(openDB(t), slog.Default())

	file := domain.File{ID: "f1", UserID: "u1", OriginalName: "cat.png",
		Mimetype: "image/png", Size: 2048}
	req.NoError(repository.Save(file))

	fetched, err := repository.FindByID("f1")
	req.NoError(err)
	req.Equal(file, fetched)

	_, err = repository.FindByID("ghost")
	req.ErrorIs(err, apperrors.ErrNotFound)
}
