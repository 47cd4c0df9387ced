package background

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/quill-go/assets"
)

// recordingRemover remembers every name it was asked to remove.
type recordingRemover struct {
	mu      sync.Mutex
	removed []string
	failOn  map[string]bool
	block   chan struct{}
}

func (r *recordingRemover) Remove(_ context.Context, name string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[name] {
		return errors.New("permission denied")
	}
	r.removed = append(r.removed, name)
	return nil
}

func (r *recordingRemover) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.removed...)
	sort.Strings(out)
	return out
}

func TestJanitorDrainsQueueOnStop(t *testing.T) {
	remover := &recordingRemover{failOn: map[string]bool{"locked.png": true}}
	logger, hook := test.NewNullLogger()
	j := NewJanitor(remover, JanitorOptions{Workers: 3, QueueSize: 16}, logger)
	j.Start()

	for _, name := range []string{"a.png", "b.png", "c.png", "locked.png"} {
		j.Schedule(name)
	}
	j.Schedule("")

	require.NoError(t, j.Stop(context.Background()))

	assert.Equal(t, []string{"a.png", "b.png", "c.png"}, remover.names())
	ok, failed := j.Stats()
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, failed)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["asset"] == "locked.png" {
			warned = true
		}
	}
	assert.True(t, warned, "a failed removal is logged")
}

func TestJanitorRemovesInlineWhenQueueIsFull(t *testing.T) {
	remover := &recordingRemover{block: make(chan struct{})}
	logger, _ := test.NewNullLogger()
	j := NewJanitor(remover, JanitorOptions{Workers: 1, QueueSize: 1}, logger)
	j.Start()

	// The single worker blocks on its first job and the queue holds one more, so at least
	// one of these falls back to an inline removal.
	done := make(chan struct{})
	go func() {
		j.Schedule("first.png")
		j.Schedule("second.png")
		j.Schedule("third.png")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	close(remover.block)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Schedule blocked")
	}
	require.NoError(t, j.Stop(context.Background()))
	assert.Equal(t, []string{"first.png", "second.png", "third.png"}, remover.names())
}

func TestJanitorScheduleAfterStopStillRemoves(t *testing.T) {
	remover := &recordingRemover{}
	logger, _ := test.NewNullLogger()
	j := NewJanitor(remover, JanitorOptions{Workers: 1, QueueSize: 4}, logger)
	j.Start()
	require.NoError(t, j.Stop(context.Background()))

	j.Schedule("late.png")

	assert.Equal(t, []string{"late.png"}, remover.names())
}

type fakeLister []assets.Info

func (f fakeLister) List(context.Context) ([]assets.Info, error) { return f, nil }

type fakeIndex map[string]struct{}

func (f fakeIndex) ReferencedAssets(context.Context) (map[string]struct{}, error) { return f, nil }

func TestSweepOrphansKeepsReferencedAndFreshFiles(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-2 * time.Hour)
	remover := &recordingRemover{}
	logger, _ := test.NewNullLogger()

	s := &Sweeper{
		Lister: fakeLister{
			{Name: "avatar.png", ModTime: old},
			{Name: "thumb.png", ModTime: old},
			{Name: "orphan.png", ModTime: old},
			{Name: "uploading.png", ModTime: now.Add(-time.Minute)},
		},
		Index:   fakeIndex{"avatar.png": {}, "thumb.png": {}},
		Remover: remover,
		MinAge:  time.Hour,
		Logger:  logger,
		Now:     func() time.Time { return now },
	}

	removed, err := s.SweepOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"orphan.png"}, remover.names())
}

func TestJanitorRunsPeriodicSweep(t *testing.T) {
	logger, _ := test.NewNullLogger()
	calls := make(chan struct{}, 4)
	j := NewJanitor(&recordingRemover{}, JanitorOptions{
		Workers:       1,
		QueueSize:     1,
		SweepInterval: 10 * time.Millisecond,
		Sweep: func(context.Context) (int, error) {
			select {
			case calls <- struct{}{}:
			default:
			}
			return 0, nil
		},
	}, logger)
	j.Start()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep never ran")
	}
	require.NoError(t, j.Stop(context.Background()))
}
