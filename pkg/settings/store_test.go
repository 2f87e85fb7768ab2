package settings

import (
	"errors"
	"path/filepath"
	"testing"
)

// storeFactories lets every behavioural test run against both backends.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"bolt": func() Store {
			s, err := OpenBoltStore(filepath.Join(t.TempDir(), "settings.db"))
			if err != nil {
				t.Fatalf("OpenBoltStore() error = %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStoreSetGet(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()

			if _, err := s.Get(KeyActiveDataset, 0); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
			}

			if err := s.Set(KeyActiveDataset, []byte{1, 2, 3}); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := s.Set(KeyActiveDataset, []byte{4, 5}); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			got, err := s.Get(KeyActiveDataset, 0)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(got) != string([]byte{4, 5}) {
				t.Errorf("Get() = %v, want [4 5]", got)
			}

			if _, err := s.Get(KeyActiveDataset, 1); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(index 1) error = %v, want ErrNotFound after Set", err)
			}
		})
	}
}

func TestStoreAddDelete(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()

			for _, v := range []string{"a", "b", "c"} {
				if err := s.Add(KeyPendingDataset, []byte(v)); err != nil {
					t.Fatalf("Add(%q) error = %v", v, err)
				}
			}

			if err := s.Delete(KeyPendingDataset, 1); err != nil {
				t.Fatalf("Delete(1) error = %v", err)
			}

			for i, want := range []string{"a", "c"} {
				got, err := s.Get(KeyPendingDataset, i)
				if err != nil {
					t.Fatalf("Get(%d) error = %v", i, err)
				}
				if string(got) != want {
					t.Errorf("Get(%d) = %q, want %q", i, got, want)
				}
			}

			if err := s.Delete(KeyPendingDataset, 5); !errors.Is(err, ErrNotFound) {
				t.Errorf("Delete(5) error = %v, want ErrNotFound", err)
			}

			if err := s.Delete(KeyPendingDataset, DeleteAll); err != nil {
				t.Fatalf("Delete(DeleteAll) error = %v", err)
			}
			if _, err := s.Get(KeyPendingDataset, 0); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() after DeleteAll error = %v, want ErrNotFound", err)
			}
			if err := s.Delete(KeyPendingDataset, DeleteAll); !errors.Is(err, ErrNotFound) {
				t.Errorf("second DeleteAll error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreGetReturnsCopy(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			value := []byte{9, 9}
			if err := s.Set(KeyNetworkInfo, value); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			value[0] = 0

			got, _ := s.Get(KeyNetworkInfo, 0)
			got[1] = 0

			again, _ := s.Get(KeyNetworkInfo, 0)
			if again[0] != 9 || again[1] != 9 {
				t.Errorf("stored value was aliased: %v", again)
			}
		})
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	s, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("OpenBoltStore() error = %v", err)
	}
	if err := s.Set(KeyActiveDataset, []byte("dataset")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = OpenBoltStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	got, err := s.Get(KeyActiveDataset, 0)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "dataset" {
		t.Errorf("Get() = %q, want %q", got, "dataset")
	}
}

func TestNetworkInfoStore(t *testing.T) {
	store := NewNetworkInfoStore(NewMemoryStore())

	if _, err := store.LoadNetworkInfo(); !IsNotFound(err) {
		t.Fatalf("LoadNetworkInfo() on empty store error = %v, want not found", err)
	}

	want := NetworkInfo{KeySequence: 7, MLEFrameCounter: 1000, MACFrameCounter: 2000, RLOC16: 0x0400}
	if err := store.SaveNetworkInfo(want); err != nil {
		t.Fatalf("SaveNetworkInfo() error = %v", err)
	}

	got, err := store.LoadNetworkInfo()
	if err != nil {
		t.Fatalf("LoadNetworkInfo() error = %v", err)
	}
	if got.KeySequence != want.KeySequence || got.MLEFrameCounter != want.MLEFrameCounter ||
		got.MACFrameCounter != want.MACFrameCounter || got.RLOC16 != want.RLOC16 {
		t.Errorf("LoadNetworkInfo() = %+v, want %+v", got, want)
	}
}

func TestKeyString(t *testing.T) {
	if got := KeyNetworkInfo.String(); got != "NetworkInfo" {
		t.Errorf("String() = %q", got)
	}
	if got := Key(0x99).String(); got != "Key(0x0099)" {
		t.Errorf("String() = %q", got)
	}
}
