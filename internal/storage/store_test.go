package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fmusim/internal/dynamo"
)

func sampleResult(name string) *dynamo.Result {
	return &dynamo.Result{
		System: name,
		Names:  []string{name + ".h", name + ".v"},
		Times:  []float64{0, 0.1, 0.2},
		States: []dynamo.State{
			{1, 0},
			{0.950950000000001, -0.981},
			{0.8038, -1.962 / 3},
		},
		Events: []dynamo.EventRecord{
			{Name: name + ".event", Time: 0.15, Step: 2, Before: dynamo.State{0, -1.5}, After: dynamo.State{0, 1.05}},
		},
		StepsTaken: 2,
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, s.Init())
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := newStore(t)
	id, err := s.Save(RunMetadata{
		Model:       "BouncingBall",
		GUID:        "{guid}",
		StopTime:    0.2,
		Dt:          0.1,
		Integrator:  "rk4",
		StartValues: map[string]float64{"e": 0.5},
	}, []*dynamo.Result{sampleResult("left"), sampleResult("right")})
	require.NoError(t, err)
	assert.Contains(t, id, "BouncingBall_")

	meta, err := s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, id, meta.ID)
	assert.Equal(t, []string{"left", "right"}, meta.Instances)
	assert.Equal(t, 2, meta.Steps["left"])
	assert.Equal(t, 1, meta.Events["right"])
	assert.Equal(t, 0.5, meta.StartValues["e"])
	assert.False(t, meta.Timestamp.IsZero())
}

func TestCSVRoundTripIsExact(t *testing.T) {
	s := newStore(t)
	res := sampleResult("ball")
	id, err := s.Save(RunMetadata{Model: "m"}, []*dynamo.Result{res})
	require.NoError(t, err)

	names, states, times, err := s.LoadStates(id, "ball")
	require.NoError(t, err)
	assert.Equal(t, res.Names, names)
	assert.Equal(t, res.Times, times)
	require.Len(t, states, len(res.States))
	for i := range states {
		assert.Equal(t, []float64(res.States[i]), states[i])
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	s := newStore(t)
	res := sampleResult("ball")
	id, err := s.Save(RunMetadata{Model: "m"}, []*dynamo.Result{res})
	require.NoError(t, err)

	archive, err := s.LoadArchive(id)
	require.NoError(t, err)
	assert.Equal(t, id, archive.RunID)
	require.Len(t, archive.Trajectories, 1)

	got := archive.Trajectories[0].Result()
	assert.Equal(t, res.System, got.System)
	assert.Equal(t, res.Names, got.Names)
	assert.Equal(t, res.Times, got.Times)
	assert.Equal(t, res.States, got.States)
	assert.Equal(t, res.StepsTaken, got.StepsTaken)
	require.Len(t, got.Events, 1)
	assert.Equal(t, res.Events[0].After, got.Events[0].After)
}

func TestArchiveEncodingIsDeterministic(t *testing.T) {
	a := Archive{RunID: "x", Trajectories: []Trajectory{trajectoryOf(sampleResult("a"))}}
	first, err := encodeArchive(a)
	require.NoError(t, err)
	second, err := encodeArchive(a)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestList(t *testing.T) {
	s := newStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older, err := s.Save(RunMetadata{Model: "a", Timestamp: base}, []*dynamo.Result{sampleResult("x")})
	require.NoError(t, err)
	newer, err := s.Save(RunMetadata{Model: "b", Timestamp: base.Add(time.Hour)}, []*dynamo.Result{sampleResult("x")})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(s.baseDir, "junk"), 0755))

	runs, err := s.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer, runs[0].ID)
	assert.Equal(t, older, runs[1].ID)
}

func TestListMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent"))
	runs, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLoadUnknownRun(t *testing.T) {
	s := newStore(t)
	_, err := s.Load("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, _, _, err = s.LoadStates("nope", "ball")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.LoadArchive("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestExportJSON(t *testing.T) {
	s := newStore(t)
	id, err := s.Save(RunMetadata{Model: "m"}, []*dynamo.Result{sampleResult("ball")})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.ExportJSON(&buf, id))

	var data ExportData
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, id, data.Metadata.ID)
	ball, ok := data.Instances["ball"]
	require.True(t, ok)
	assert.Len(t, ball.States, 3)
	assert.Equal(t, "ball.event", ball.Events[0].Name)
}

func TestSaveRejectsUnnamedResult(t *testing.T) {
	s := newStore(t)
	_, err := s.Save(RunMetadata{Model: "m"}, []*dynamo.Result{{Times: []float64{0}, States: []dynamo.State{{1}}}})
	assert.Error(t, err)
}
