// Package watchlist はローカルストレージに保存するウォッチリストを提供する。
//
// リストは追加順を保ったJSON配列として1つのキーに保存し、書き込みの度に全体を保存し直す。
// 同一IDの映画は1件のみ保持する。
package watchlist

import (
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/hitoshi/moovies/internal/client/api"
	"github.com/hitoshi/moovies/internal/client/storage"
)

// Store はウォッチリストの読み書きを行う。
type Store struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewStore はStoreを生成する。
func NewStore(s storage.Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{storage: s, logger: logger}
}

// List は保存されている映画を追加順に返す。
// 未保存や解釈できない内容の場合は空のリストを返す（エラーはログのみ）。
func (s *Store) List() []api.Movie {
	raw, ok, err := s.storage.Get(storage.KeyWatchlist)
	if err != nil {
		s.logger.Error("ウォッチリストの読み込みに失敗", slog.String("error", err.Error()))
		return []api.Movie{}
	}
	if !ok || raw == "" {
		return []api.Movie{}
	}

	var list []api.Movie
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		s.logger.Error("Failed to parse watchlist", slog.String("error", err.Error()))
		return []api.Movie{}
	}
	if list == nil {
		return []api.Movie{}
	}
	return list
}

// IsSaved はidの映画が保存されているかを返す。
func (s *Store) IsSaved(id int) bool {
	return indexOf(s.List(), id) >= 0
}

// Toggle は映画が未保存なら末尾に追加し、保存済みなら最初の1件を削除する。
// 追加した場合はtrueを返す。
func (s *Store) Toggle(movie api.Movie) (bool, error) {
	list := s.List()
	if i := indexOf(list, movie.ID); i >= 0 {
		list = append(list[:i], list[i+1:]...)
		return false, s.save(list)
	}
	list = append(list, movie)
	return true, s.save(list)
}

// Remove はidの映画を全て削除する。
func (s *Store) Remove(id int) error {
	list := s.List()
	kept := list[:0]
	for _, m := range list {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	return s.save(kept)
}

func (s *Store) save(list []api.Movie) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode watchlist: %w", err)
	}
	if err := s.storage.Set(storage.KeyWatchlist, string(data)); err != nil {
		return fmt.Errorf("failed to save watchlist: %w", err)
	}
	return nil
}

func indexOf(list []api.Movie, id int) int {
	for i, m := range list {
		if m.ID == id {
			return i
		}
	}
	return -1
}
