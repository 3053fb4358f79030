package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
)

type FileRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewFileRepository(db *badger.DB, log *slog.Logger) FileRepository {
	return FileRepository{db: db, log: log}
}

func fileKey(id string) []byte {
	return []byte("file:" + id)
}

func (f FileRepository) Save(file domain.File) error {
	bytes, err := json.Marshal(file)
	if err != nil {
		return err
	}
	return f.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fileKey(file.ID), bytes)
	})
}

func (f FileRepository) FindByID(id string) (domain.File, error) {
	var file domain.File
	err := f.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &file)
		})
	})
	if isKeyNotFound(err) {
		return domain.File{}, notFound("file", id)
	}
	if err != nil {
		return domain.File{}, fmt.Errorf("file %s lookup: %w", id, err)
	}
	return file, nil
}
