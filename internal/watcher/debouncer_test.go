package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalescesCreateThenModify(t *testing.T) {
	d := newDebouncer(20*time.Millisecond, 4)
	d.add(FileEvent{Path: "a.txt", Operation: OpCreate})
	d.add(FileEvent{Path: "a.txt", Operation: OpModify})

	batch := <-d.Output()
	require.Len(t, batch, 1)
	require.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncerCancelsCreateThenRemove(t *testing.T) {
	d := newDebouncer(20*time.Millisecond, 4)
	d.add(FileEvent{Path: "a.txt", Operation: OpCreate})
	d.add(FileEvent{Path: "a.txt", Operation: OpRemove})
	d.add(FileEvent{Path: "b.txt", Operation: OpCreate})

	batch := <-d.Output()
	require.Len(t, batch, 1)
	require.Equal(t, "b.txt", batch[0].Path)
}

func TestDebouncerTurnsRemoveThenCreateIntoModify(t *testing.T) {
	d := newDebouncer(20*time.Millisecond, 4)
	d.add(FileEvent{Path: "a.txt", Operation: OpRemove})
	d.add(FileEvent{Path: "a.txt", Operation: OpCreate})

	batch := <-d.Output()
	require.Len(t, batch, 1)
	require.Equal(t, OpModify, batch[0].Operation)
}
