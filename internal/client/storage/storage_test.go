package storage

import (
	"testing"
)

// storageContract は全てのStorage実装が満たすべき振る舞いを検証する。
func storageContract(t *testing.T, s Storage) {
	t.Helper()

	if _, ok, err := s.Get(KeyAuthToken); err != nil || ok {
		t.Fatalf("未設定のキーは ok=false: ok=%v err=%v", ok, err)
	}

	if err := s.Set(KeyAuthToken, "token-1"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	v, ok, err := s.Get(KeyAuthToken)
	if err != nil || !ok || v != "token-1" {
		t.Fatalf("Get() = %q, %v, %v; want token-1, true, nil", v, ok, err)
	}

	// 後勝ち
	if err := s.Set(KeyAuthToken, "token-2"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if v, _, _ := s.Get(KeyAuthToken); v != "token-2" {
		t.Errorf("上書き後の値 = %q, want token-2", v)
	}

	// 空文字列も値として保持する
	if err := s.Set(KeyGuestMode, ""); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if v, ok, _ := s.Get(KeyGuestMode); !ok || v != "" {
		t.Errorf("空文字列の値 = %q, ok=%v", v, ok)
	}

	if err := s.Remove(KeyAuthToken); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, ok, _ := s.Get(KeyAuthToken); ok {
		t.Error("削除後は ok=false になること")
	}
	if err := s.Remove("never-set"); err != nil {
		t.Errorf("存在しないキーの削除は成功すること: %v", err)
	}
}

func TestMemoryStorage(t *testing.T) {
	storageContract(t, NewMemoryStorage())
}

func TestBadgerStorage_InMemory(t *testing.T) {
	s, err := OpenBadger("")
	if err != nil {
		t.Fatalf("OpenBadger() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	storageContract(t, s)
}

func TestBadgerStorage_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("OpenBadger() error: %v", err)
	}
	if err := s.Set(KeyWatchlist, `[{"id":1}]`); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("再オープンに失敗: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	v, ok, err := reopened.Get(KeyWatchlist)
	if err != nil || !ok || v != `[{"id":1}]` {
		t.Errorf("再オープン後の値 = %q, %v, %v", v, ok, err)
	}
}
