package jsondb

import (
	"errors"
	"path/filepath"
	"testing"
)

type testRow struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type recordingObserver struct {
	appended []*testRow
}

func (o *recordingObserver) OnAppend(row *testRow) {
	o.appended = append(o.appended, row)
}

func setupTable(t *testing.T) (*Table[*testRow], *DirMedium) {
	m, err := NewDirMedium(filepath.Join(t.TempDir(), "kv"))
	if err != nil {
		t.Fatalf("NewDirMedium failed: %v", err)
	}
	return NewTable[*testRow](m, "rows"), m
}

func TestTable(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		table, _ := setupTable(t)
		rows, err := table.Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if rows == nil || len(rows) != 0 {
			t.Errorf("Load() = %v, want empty non-nil slice", rows)
		}
	})

	t.Run("Append", func(t *testing.T) {
		table, m := setupTable(t)
		obs := &recordingObserver{}
		table.AddObserver(obs)
		for i, name := range []string{"One", "Two"} {
			if err := table.Append(&testRow{ID: i + 1, Name: name}); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		all := table.All()
		if len(all) != 2 || all[0].Name != "One" || all[1].Name != "Two" {
			t.Errorf("All() = %+v", all)
		}
		if len(obs.appended) != 2 {
			t.Errorf("observer saw %d appends, want 2", len(obs.appended))
		}

		// A second table on the same medium sees the same data.
		again := NewTable[*testRow](m, "rows")
		if got := len(again.All()); got != 2 {
			t.Errorf("re-opened table has %d rows, want 2", got)
		}
		raw, err := m.Get("rows")
		if err != nil {
			t.Fatal(err)
		}
		if want := `[{"id":1,"name":"One"},{"id":2,"name":"Two"}]`; string(raw) != want {
			t.Errorf("raw = %s, want %s", raw, want)
		}
	})

	t.Run("corrupt", func(t *testing.T) {
		table, m := setupTable(t)
		if err := m.Set("rows", []byte("{not json")); err != nil {
			t.Fatal(err)
		}
		_, err := table.Load()
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("Load() error = %v, want *DecodeError", err)
		}
		if de.Key != "rows" {
			t.Errorf("DecodeError.Key = %q", de.Key)
		}
		if got := table.All(); len(got) != 0 {
			t.Errorf("All() = %v, want empty", got)
		}
		// Writes recover the collection.
		if err := table.Append(&testRow{ID: 1}); err != nil {
			t.Fatal(err)
		}
		if got := len(table.All()); got != 1 {
			t.Errorf("len(All()) = %d, want 1", got)
		}
	})

	t.Run("Modify", func(t *testing.T) {
		table, _ := setupTable(t)
		_ = table.Save([]*testRow{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}})
		err := table.Modify(func(rows []*testRow) ([]*testRow, error) {
			rows[1].Name = "B"
			return rows, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if row, ok := table.Find(func(r *testRow) bool { return r.ID == 2 }); !ok || row.Name != "B" {
			t.Errorf("Find() = %+v, %v", row, ok)
		}

		wantErr := errors.New("abort")
		err = table.Modify(func(rows []*testRow) ([]*testRow, error) {
			return nil, wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Errorf("Modify() error = %v, want %v", err, wantErr)
		}
		if got := len(table.All()); got != 2 {
			t.Errorf("aborted Modify changed the table: %d rows", got)
		}
	})

	t.Run("DeleteFunc", func(t *testing.T) {
		table, _ := setupTable(t)
		_ = table.Save([]*testRow{{ID: 1}, {ID: 2}, {ID: 3}})
		n, err := table.DeleteFunc(func(r *testRow) bool { return r.ID != 2 })
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("DeleteFunc() = %d, want 2", n)
		}
		got := table.Filter(func(*testRow) bool { return true })
		if len(got) != 1 || got[0].ID != 2 {
			t.Errorf("remaining rows = %+v", got)
		}
		if n, _ := table.DeleteFunc(func(*testRow) bool { return false }); n != 0 {
			t.Errorf("DeleteFunc() = %d, want 0", n)
		}
	})
}

func TestValue(t *testing.T) {
	m := NewMemMedium()
	v := NewValue[map[string]string](m, "settings")
	if _, err := v.Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
	if err := v.Save(map[string]string{"a": "b"}); err != nil {
		t.Fatal(err)
	}
	got, err := v.Load()
	if err != nil || got["a"] != "b" {
		t.Errorf("Load() = %v, %v", got, err)
	}
	_ = m.Set("settings", []byte("[1,2"))
	var de *DecodeError
	if _, err := v.Load(); !errors.As(err, &de) {
		t.Errorf("Load() error = %v, want *DecodeError", err)
	}
}
