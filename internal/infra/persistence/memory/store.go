// Package memory provides an in-memory implementation of the persistence
// store used for tests, ephemeral environments and as the working set of the
// JSON document backend.
package memory

import (
	"compliancedash/pkg/domain"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Plant aliases domain.Plant for in-memory persistence operations.
	Plant = domain.Plant
	// PlantFile aliases domain.PlantFile.
	PlantFile = domain.PlantFile
	// Alert aliases domain.Alert.
	Alert = domain.Alert
	// Message aliases domain.Message.
	Message = domain.Message
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result.
	Result = domain.Result
)

// Sequences holds the next identifier handed out for each generated id space.
// File, alert and message ids are never reused, even across bulk replaces.
type Sequences struct {
	Plant   int `json:"plant"`
	File    int `json:"file"`
	Alert   int `json:"alert"`
	Message int `json:"message"`
}

// Snapshot captures a point-in-time clone of the store state. Plants carry
// their attached files embedded, matching the JSON document layout.
type Snapshot struct {
	Plants    []Plant   `json:"plants"`
	Alerts    []Alert   `json:"alerts"`
	Messages  []Message `json:"messages"`
	Sequences Sequences `json:"sequences"`
}

type memoryState struct {
	plants   map[int]Plant
	files    map[int][]PlantFile
	alerts   []Alert
	messages []Message
	seq      Sequences
}

func newMemoryState() memoryState {
	return memoryState{
		plants: make(map[int]Plant),
		files:  make(map[int][]PlantFile),
		seq:    Sequences{Plant: 1, File: 1, Alert: 1, Message: 1},
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		plants:   make(map[int]Plant, len(s.plants)),
		files:    make(map[int][]PlantFile, len(s.files)),
		alerts:   make([]Alert, 0, len(s.alerts)),
		messages: slices.Clone(s.messages),
		seq:      s.seq,
	}
	for id, p := range s.plants {
		out.plants[id] = p
	}
	for id, fs := range s.files {
		out.files[id] = slices.Clone(fs)
	}
	for _, a := range s.alerts {
		out.alerts = append(out.alerts, cloneAlert(a))
	}
	return out
}

func cloneAlert(a Alert) Alert {
	a.Responses = slices.Clone(a.Responses)
	if a.PlantID != nil {
		id := *a.PlantID
		a.PlantID = &id
	}
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		a.ResolvedAt = &at
	}
	if a.Responses == nil {
		a.Responses = []domain.AlertResponse{}
	}
	return a
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	v := transactionView{state: &state}
	plants, _ := v.ListPlants()
	alerts, _ := v.ListAlerts()
	messages, _ := v.ListMessages()
	return Snapshot{Plants: plants, Alerts: alerts, Messages: messages, Sequences: state.seq}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, p := range s.Plants {
		files := slices.Clone(p.Files)
		for i := range files {
			files[i].PlantID = p.ID
		}
		p.Files = nil
		state.plants[p.ID] = p
		if len(files) > 0 {
			state.files[p.ID] = files
		}
	}
	for _, a := range s.Alerts {
		state.alerts = append(state.alerts, cloneAlert(a))
	}
	state.messages = slices.Clone(s.Messages)
	state.seq = reconcileSequences(state, s.Sequences)
	// documents written before file ids existed carry zero ids
	for plantID, files := range state.files {
		for i := range files {
			if files[i].ID == 0 {
				files[i].ID = state.seq.File
				state.seq.File++
			}
		}
		state.files[plantID] = files
	}
	return state
}

// reconcileSequences keeps every sequence ahead of the ids already present so
// older documents without a sequences block never hand out a used id.
func reconcileSequences(state memoryState, seq Sequences) Sequences {
	maxPlant, maxFile, maxAlert, maxMessage := 0, 0, 0, 0
	for id := range state.plants {
		maxPlant = max(maxPlant, id)
		for _, f := range state.files[id] {
			maxFile = max(maxFile, f.ID)
		}
	}
	for _, a := range state.alerts {
		maxAlert = max(maxAlert, a.ID)
	}
	for _, m := range state.messages {
		maxMessage = max(maxMessage, m.ID)
	}
	return Sequences{
		Plant:   max(seq.Plant, maxPlant+1, 1),
		File:    max(seq.File, maxFile+1, 1),
		Alert:   max(seq.Alert, maxAlert+1, 1),
		Message: max(seq.Message, maxMessage+1, 1),
	}
}

// CommitHook is invoked with the post-transaction state before it becomes
// visible. A returned error aborts the transaction.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook installs a hook that durably persists each transaction.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

// WithClock overrides the time source used for generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// Store is an in-memory persistence implementation with clone-and-swap
// transactions.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	hook  CommitHook
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time { return s.nowFn }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn against a transactional copy of the store
// state. The copy replaces the live state only when fn and the commit hook
// both succeed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		transactionView: transactionView{},
		state:           s.state.clone(),
		now:             s.nowFn(),
	}
	tx.transactionView.state = &tx.state

	if err := fn(tx); err != nil {
		return Result{}, err
	}
	if s.hook != nil {
		if err := s.hook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return Result{}, err
		}
	}
	s.state = tx.state
	return Result{Changes: tx.changes}, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

type transactionView struct {
	state *memoryState
}

func (v transactionView) ListPlants() ([]Plant, error) {
	out := make([]Plant, 0, len(v.state.plants))
	for id, p := range v.state.plants {
		p.Files = sortedFiles(v.state.files[id])
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v transactionView) FindPlant(id int) (Plant, bool, error) {
	p, ok := v.state.plants[id]
	if !ok {
		return Plant{}, false, nil
	}
	p.Files = sortedFiles(v.state.files[id])
	return p, true, nil
}

func (v transactionView) ListPlantFiles(plantID int) ([]PlantFile, error) {
	return sortedFiles(v.state.files[plantID]), nil
}

func (v transactionView) FindPlantFile(plantID, fileID int) (PlantFile, bool, error) {
	for _, f := range v.state.files[plantID] {
		if f.ID == fileID {
			return f, true, nil
		}
	}
	return PlantFile{}, false, nil
}

func (v transactionView) ListAlerts() ([]Alert, error) {
	out := make([]Alert, 0, len(v.state.alerts))
	for _, a := range v.state.alerts {
		out = append(out, cloneAlert(a))
	}
	return out, nil
}

func (v transactionView) FindAlert(id int) (Alert, bool, error) {
	for _, a := range v.state.alerts {
		if a.ID == id {
			return cloneAlert(a), true, nil
		}
	}
	return Alert{}, false, nil
}

func (v transactionView) ListMessages() ([]Message, error) {
	out := slices.Clone(v.state.messages)
	if out == nil {
		out = []Message{}
	}
	return out, nil
}

// sortedFiles orders attachments most recent first, newest id winning ties.
func sortedFiles(files []PlantFile) []PlantFile {
	out := slices.Clone(files)
	if out == nil {
		return []PlantFile{}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

type transaction struct {
	transactionView
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(entity domain.EntityType, action domain.Action, id int) {
	tx.changes = append(tx.changes, Change{Entity: entity, Action: action, ID: id})
}

func (tx *transaction) ReplacePlants(plants []Plant) error {
	next := make(map[int]Plant, len(plants))
	maxID := 0
	for i, p := range plants {
		if p.ID <= 0 {
			return domain.ValidationError{Field: fmt.Sprintf("plants[%d].id", i), Reason: "must be positive"}
		}
		if _, dup := next[p.ID]; dup {
			return domain.ValidationError{Field: fmt.Sprintf("plants[%d].id", i), Reason: fmt.Sprintf("duplicate id %d", p.ID)}
		}
		p.Files = nil
		next[p.ID] = p
		maxID = max(maxID, p.ID)
	}
	tx.state.plants = next
	tx.state.files = make(map[int][]PlantFile)
	tx.state.seq.Plant = maxID + 1
	tx.recordChange(domain.EntityPlant, domain.ActionReplace, 0)
	return nil
}

func (tx *transaction) UpdatePlant(id int, update domain.PlantUpdate) (Plant, error) {
	current, ok := tx.state.plants[id]
	if !ok {
		return Plant{}, domain.NotFound(domain.EntityPlant, id)
	}
	update.Apply(&current)
	current.ID = id
	tx.state.plants[id] = current
	tx.recordChange(domain.EntityPlant, domain.ActionUpdate, id)
	current.Files = sortedFiles(tx.state.files[id])
	return current, nil
}

func (tx *transaction) AddPlantFile(plantID int, file PlantFile) (PlantFile, error) {
	if _, ok := tx.state.plants[plantID]; !ok {
		return PlantFile{}, domain.NotFound(domain.EntityPlant, plantID)
	}
	file.ID = tx.state.seq.File
	tx.state.seq.File++
	file.PlantID = plantID
	if file.UploadedAt.IsZero() {
		file.UploadedAt = tx.now
	}
	tx.state.files[plantID] = append(tx.state.files[plantID], file)
	tx.recordChange(domain.EntityPlantFile, domain.ActionCreate, file.ID)
	return file, nil
}

func (tx *transaction) DeletePlantFile(plantID, fileID int) (PlantFile, error) {
	files := tx.state.files[plantID]
	for i, f := range files {
		if f.ID == fileID {
			tx.state.files[plantID] = slices.Delete(slices.Clone(files), i, i+1)
			tx.recordChange(domain.EntityPlantFile, domain.ActionDelete, fileID)
			return f, nil
		}
	}
	return PlantFile{}, domain.NotFound(domain.EntityPlantFile, fileID)
}

func (tx *transaction) CreateAlert(alert Alert) (Alert, error) {
	if alert.PlantID != nil {
		if _, ok := tx.state.plants[*alert.PlantID]; !ok {
			return Alert{}, domain.NotFound(domain.EntityPlant, *alert.PlantID)
		}
	}
	alert.ID = tx.state.seq.Alert
	tx.state.seq.Alert++
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = tx.now
	}
	alert = cloneAlert(alert)
	tx.state.alerts = append(tx.state.alerts, alert)
	tx.recordChange(domain.EntityAlert, domain.ActionCreate, alert.ID)
	return cloneAlert(alert), nil
}

func (tx *transaction) alertIndex(id int) (int, error) {
	for i, a := range tx.state.alerts {
		if a.ID == id {
			return i, nil
		}
	}
	return -1, domain.NotFound(domain.EntityAlert, id)
}

func (tx *transaction) AppendAlertResponse(alertID int, response domain.AlertResponse) (Alert, error) {
	i, err := tx.alertIndex(alertID)
	if err != nil {
		return Alert{}, err
	}
	if response.CreatedAt.IsZero() {
		response.CreatedAt = tx.now
	}
	a := tx.state.alerts[i]
	a.Responses = append(slices.Clone(a.Responses), response)
	tx.state.alerts[i] = a
	tx.recordChange(domain.EntityAlert, domain.ActionUpdate, alertID)
	return cloneAlert(a), nil
}

func (tx *transaction) SetAlertResolved(alertID int, resolved bool, resolvedBy string, at time.Time) (Alert, error) {
	i, err := tx.alertIndex(alertID)
	if err != nil {
		return Alert{}, err
	}
	a := tx.state.alerts[i]
	a.Resolved = resolved
	if resolved {
		if at.IsZero() {
			at = tx.now
		}
		a.ResolvedBy = resolvedBy
		a.ResolvedAt = &at
	} else {
		a.ResolvedBy = ""
		a.ResolvedAt = nil
	}
	tx.state.alerts[i] = a
	tx.recordChange(domain.EntityAlert, domain.ActionUpdate, alertID)
	return cloneAlert(a), nil
}

func (tx *transaction) DeleteAlert(alertID int) (Alert, error) {
	i, err := tx.alertIndex(alertID)
	if err != nil {
		return Alert{}, err
	}
	removed := tx.state.alerts[i]
	tx.state.alerts = slices.Delete(slices.Clone(tx.state.alerts), i, i+1)
	tx.recordChange(domain.EntityAlert, domain.ActionDelete, alertID)
	return cloneAlert(removed), nil
}

func (tx *transaction) AppendMessage(msg Message) (Message, error) {
	msg.ID = tx.state.seq.Message
	tx.state.seq.Message++
	if msg.SentAt.IsZero() {
		msg.SentAt = tx.now
	}
	tx.state.messages = append(tx.state.messages, msg)
	tx.recordChange(domain.EntityMessage, domain.ActionCreate, msg.ID)
	return msg, nil
}
