// Package storage はクライアントのローカルストレージ（キー・バリュー）を提供する。
// ブラウザのlocalStorageに相当し、プロセスをまたいだロックは行わない（後勝ち）。
package storage

import "sync"

// ストレージキー
const (
	KeyAuthToken = "authToken"
	KeyGuestMode = "guestMode"
	KeyUserEmail = "userEmail"
	KeyWatchlist = "moovies_watchlist"

	// KeySessionID はパスワードログインで得たセッションCookieの値。
	// CLIはプロセスごとにCookieJarを作り直すため、ここに保持する。
	KeySessionID = "sessionID"

	// KeyFirebaseCredential はFirebaseのリフレッシュトークンと有効期限（JSON）。
	// 次のプロセスでIDトークンを更新するために保持する。
	KeyFirebaseCredential = "firebaseCredential"
)

// Storage は文字列のキー・バリューストア。
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// MemoryStorage はプロセス内だけで保持するStorage実装。
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage はMemoryStorageを生成する。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get はキーに対応する値を返す。
func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set はキーに値を保存する。
func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Remove はキーを削除する。存在しない場合も成功とする。
func (s *MemoryStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*BadgerStorage)(nil)
)
