package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix はBadgerDB上のキー名前空間。
const keyPrefix = "local:"

// BadgerStorage はBadgerDBに永続化するStorage実装。
type BadgerStorage struct {
	db *badger.DB
}

// OpenBadger はdirにBadgerDBを開く。dirが空の場合はインメモリで開く。
func OpenBadger(dir string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

// Close はBadgerDBを閉じる。
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// Get はキーに対応する値を返す。
func (s *BadgerStorage) Get(key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return string(value), true, nil
}

// Set はキーに値を保存する。
func (s *BadgerStorage) Set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Remove はキーを削除する。存在しない場合も成功とする。
func (s *BadgerStorage) Remove(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
