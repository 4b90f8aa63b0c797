package all

import (
	"testing"

	"docetl/internal/storage"
)

func TestAllKindsRegistered(t *testing.T) {
	t.Parallel()
	got := map[string]bool{}
	for _, k := range storage.Kinds() {
		got[k] = true
	}
	for _, want := range []string{"memory", "mongo", "mssql", "mysql", "postgres", "sqlite"} {
		if !got[want] {
			t.Errorf("backend %q not registered; have %v", want, storage.Kinds())
		}
	}
}
