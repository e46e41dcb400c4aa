package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/fmusim/internal/dynamo"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.cbor"
)

// ErrRunNotFound is returned for run ids with no stored metadata.
var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Model       string             `json:"model"`
	FMU         string             `json:"fmu,omitempty"`
	GUID        string             `json:"guid,omitempty"`
	Instances   []string           `json:"instances"`
	Timestamp   time.Time          `json:"timestamp"`
	StartTime   float64            `json:"start_time"`
	StopTime    float64            `json:"stop_time"`
	Dt          float64            `json:"dt"`
	Integrator  string             `json:"integrator"`
	Tolerance   float64            `json:"tolerance,omitempty"`
	StartValues map[string]float64 `json:"start_values,omitempty"`
	Steps       map[string]int     `json:"steps"`
	Events      map[string]int     `json:"events"`
	Metrics     map[string]Metrics `json:"metrics,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Metrics are the summary values of one instance, by metric name.
type Metrics map[string]float64

// Save writes a run: metadata.json, one <instance>.csv per result and the
// CBOR archive of every trajectory. The run id is assigned here.
func (s *Store) Save(meta RunMetadata, results []*dynamo.Result) (string, error) {
	meta.ID = fmt.Sprintf("%s_%s", meta.Model, uuid.New().String()[:8])
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Instances = meta.Instances[:0:0]
	meta.Steps = make(map[string]int, len(results))
	meta.Events = make(map[string]int, len(results))

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	archive := Archive{RunID: meta.ID}
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.System == "" {
			return "", fmt.Errorf("storage: result without instance name")
		}
		meta.Instances = append(meta.Instances, res.System)
		meta.Steps[res.System] = res.StepsTaken
		meta.Events[res.System] = len(res.Events)
		if err := writeCSV(filepath.Join(runDir, res.System+".csv"), res); err != nil {
			return "", err
		}
		archive.Trajectories = append(archive.Trajectories, trajectoryOf(res))
	}

	data, err := encodeArchive(archive)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, trajectoryFile), data, 0644); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(path string, res *dynamo.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)

	header := []string{"time"}
	if len(res.Names) > 0 {
		header = append(header, res.Names...)
	} else if len(res.States) > 0 {
		for i := range res.States[0] {
			header = append(header, fmt.Sprintf("x%d", i))
		}
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	for i := range res.States {
		row := []string{strconv.FormatFloat(res.Times[i], 'g', -1, 64)}
		for _, val := range res.States[i] {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// List returns every stored run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadStates reads one instance's CSV. It returns the column names, the
// states and the sample times.
func (s *Store) LoadStates(runID, instance string) ([]string, [][]float64, []float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, instance+".csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, fmt.Errorf("%w: %s/%s", ErrRunNotFound, runID, instance)
		}
		return nil, nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(records) == 0 {
		return nil, [][]float64{}, []float64{}, nil
	}

	names := records[0][1:]
	times := make([]float64, 0, len(records)-1)
	states := make([][]float64, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) == 0 {
			continue
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("storage: %s row %d: %w", instance, i, err)
		}
		state := make([]float64, 0, len(record)-1)
		for j := 1; j < len(record); j++ {
			val, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("storage: %s row %d: %w", instance, i, err)
			}
			state = append(state, val)
		}
		times = append(times, t)
		states = append(states, state)
	}
	return names, states, times, nil
}

// LoadArchive decodes the CBOR archive of a run.
func (s *Store) LoadArchive(runID string) (Archive, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Archive{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return Archive{}, err
	}
	return decodeArchive(data)
}

// ExportData is the JSON export of a run.
type ExportData struct {
	Metadata  RunMetadata               `json:"metadata"`
	Instances map[string]InstanceExport `json:"instances"`
}

type InstanceExport struct {
	Names  []string    `json:"names"`
	Times  []float64   `json:"times"`
	States [][]float64 `json:"states"`
	Events []Event     `json:"events"`
}

// ExportJSON writes the metadata and every trajectory of a run as JSON.
func (s *Store) ExportJSON(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	archive, err := s.LoadArchive(runID)
	if err != nil {
		return err
	}
	data := ExportData{Metadata: *meta, Instances: make(map[string]InstanceExport, len(archive.Trajectories))}
	for _, tr := range archive.Trajectories {
		data.Instances[tr.Instance] = InstanceExport{
			Names:  tr.Names,
			Times:  tr.Times,
			States: tr.States,
			Events: tr.Events,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
