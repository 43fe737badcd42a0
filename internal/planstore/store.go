package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"planproc/internal/config"
	"planproc/internal/plan"
)

// Store manages plan state persistence backed by SQLite. Mutate serializes
// read-modify-write cycles per plan id, which is the single concurrency
// guarantee the coordinator relies on.
type Store struct {
	db   *sql.DB
	path string

	mu       sync.Mutex
	planLock map[string]*planLock
}

// planLock serializes mutations for one plan id. refs counts holders and
// waiters and is guarded by the store's mu.
type planLock struct {
	mu   sync.Mutex
	refs int
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the plan database at cfg.Paths.DataDir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "plans.db"))
}

// OpenPath opens the plan database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, planLock: make(map[string]*planLock)}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new plan record. It fails with ErrAlreadyExists when the
// plan id is already stored.
func (s *Store) Create(ctx context.Context, state *plan.State) error {
	if state == nil {
		return errors.New("state is nil")
	}
	cols, err := encodeState(state)
	if err != nil {
		return err
	}
	err = s.execWithRetry(ctx,
		`INSERT INTO plan_states (
            plan_id, organization_id, project_id, total_sheets, phase,
            images_generated, metadata_extracted, callouts_detected, tiles_generated,
            valid_sheets, error_reason, error_at, created_at, updated_at, deadline_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		state.PlanID,
		nullableString(state.OrganizationID),
		nullableString(state.ProjectID),
		state.TotalSheets,
		string(state.Phase),
		cols.imagesGenerated,
		cols.metadataExtracted,
		cols.calloutsDetected,
		cols.tilesGenerated,
		cols.validSheets,
		cols.errorReason,
		cols.errorAt,
		state.CreatedAt.UTC().Format(time.RFC3339Nano),
		state.UpdatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(state.DeadlineAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, state.PlanID)
		}
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// Get fetches a plan snapshot by id, failing with ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, planID string) (*plan.State, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM plan_states WHERE plan_id = ?`, planID)
	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, planID)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return state, nil
}

// Mutate applies fn to the stored state under per-plan serialization and
// persists the result. No two mutations for the same plan id ever interleave;
// mutations for different plans proceed independently. fn returning an error
// aborts the write and propagates unchanged.
func (s *Store) Mutate(ctx context.Context, planID string, fn func(*plan.State) error) (*plan.State, error) {
	lock := s.acquire(planID)
	defer s.release(planID, lock)

	state, err := s.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := fn(state); err != nil {
		return nil, err
	}
	state.UpdatedAt = time.Now().UTC()
	if err := s.update(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// acquire takes the per-plan mutex, tracking how many goroutines hold or
// wait on it so release can drop the map entry once the last one is done.
// The map therefore stays proportional to in-flight mutations rather than
// growing with every plan id the store has ever seen.
func (s *Store) acquire(planID string) *planLock {
	s.mu.Lock()
	lock, ok := s.planLock[planID]
	if !ok {
		lock = &planLock{}
		s.planLock[planID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (s *Store) release(planID string, lock *planLock) {
	lock.mu.Unlock()
	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.planLock, planID)
	}
	s.mu.Unlock()
}

func (s *Store) update(ctx context.Context, state *plan.State) error {
	cols, err := encodeState(state)
	if err != nil {
		return err
	}
	err = s.execWithRetry(ctx,
		`UPDATE plan_states
         SET organization_id = ?, project_id = ?, total_sheets = ?, phase = ?,
             images_generated = ?, metadata_extracted = ?, callouts_detected = ?,
             tiles_generated = ?, valid_sheets = ?, error_reason = ?, error_at = ?,
             updated_at = ?, deadline_at = ?
         WHERE plan_id = ?`,
		nullableString(state.OrganizationID),
		nullableString(state.ProjectID),
		state.TotalSheets,
		string(state.Phase),
		cols.imagesGenerated,
		cols.metadataExtracted,
		cols.calloutsDetected,
		cols.tilesGenerated,
		cols.validSheets,
		cols.errorReason,
		cols.errorAt,
		state.UpdatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(state.DeadlineAt),
		state.PlanID,
	)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}

// List returns plans filtered by phase (or every plan when no phase is
// provided), ordered by creation time.
func (s *Store) List(ctx context.Context, phases ...plan.Phase) ([]*plan.State, error) {
	baseQuery := `SELECT ` + stateColumns + ` FROM plan_states`
	orderClause := ` ORDER BY created_at, plan_id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(phases) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(phases))
		args := make([]any, len(phases))
		for i, phase := range phases {
			args[i] = string(phase)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE phase IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var states []*plan.State
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// Stats returns a count of plans grouped by phase.
func (s *Store) Stats(ctx context.Context) (map[plan.Phase]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phase, COUNT(1) FROM plan_states GROUP BY phase`)
	if err != nil {
		return nil, fmt.Errorf("plan stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[plan.Phase]int)
	for rows.Next() {
		var phase string
		var count int
		if err := rows.Scan(&phase, &count); err != nil {
			return nil, err
		}
		stats[plan.Phase(phase)] = count
	}
	return stats, rows.Err()
}

// Deadline pairs a plan id with its armed deadline for supervisor resync.
type Deadline struct {
	PlanID string
	At     time.Time
}

// ActiveDeadlines returns deadlines of non-terminal plans, oldest first. The
// supervisor sweeps these at startup and on an interval so armed timers
// survive restarts.
func (s *Store) ActiveDeadlines(ctx context.Context) ([]Deadline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT plan_id, deadline_at FROM plan_states
         WHERE deadline_at IS NOT NULL AND phase NOT IN (?, ?)
         ORDER BY deadline_at`,
		string(plan.PhaseComplete),
		string(plan.PhaseFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("query deadlines: %w", err)
	}
	defer rows.Close()

	var deadlines []Deadline
	for rows.Next() {
		var planID, raw string
		if err := rows.Scan(&planID, &raw); err != nil {
			return nil, err
		}
		at, err := parseTimeString(raw)
		if err != nil {
			continue
		}
		deadlines = append(deadlines, Deadline{PlanID: planID, At: at})
	}
	return deadlines, rows.Err()
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

const stateColumns = "plan_id, organization_id, project_id, total_sheets, phase, images_generated, metadata_extracted, callouts_detected, tiles_generated, valid_sheets, error_reason, error_at, created_at, updated_at, deadline_at"

type encodedSets struct {
	imagesGenerated   string
	metadataExtracted string
	calloutsDetected  string
	tilesGenerated    string
	validSheets       string
	errorReason       any
	errorAt           any
}

func encodeState(state *plan.State) (encodedSets, error) {
	var cols encodedSets
	var err error
	if cols.imagesGenerated, err = encodeSet(state.ImagesGenerated); err != nil {
		return cols, err
	}
	if cols.metadataExtracted, err = encodeSet(state.MetadataExtracted); err != nil {
		return cols, err
	}
	if cols.calloutsDetected, err = encodeSet(state.CalloutsDetected); err != nil {
		return cols, err
	}
	if cols.tilesGenerated, err = encodeSet(state.TilesGenerated); err != nil {
		return cols, err
	}
	if cols.validSheets, err = encodeSet(state.ValidSheets); err != nil {
		return cols, err
	}
	if state.LastError != nil {
		cols.errorReason = state.LastError.Reason
		cols.errorAt = state.LastError.At.UTC().Format(time.RFC3339Nano)
	}
	return cols, nil
}

func encodeSet(set plan.CompletionSet) (string, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("encode completion set: %w", err)
	}
	return string(data), nil
}

func scanState(scanner interface{ Scan(dest ...any) error }) (*plan.State, error) {
	var (
		planID        string
		orgID         sql.NullString
		projectID     sql.NullString
		totalSheets   int
		phaseStr      string
		imagesRaw     string
		metadataRaw   string
		calloutsRaw   string
		tilesRaw      string
		validRaw      string
		errorReason   sql.NullString
		errorAtRaw    sql.NullString
		createdRaw    string
		updatedRaw    string
		deadlineAtRaw sql.NullString
	)

	if err := scanner.Scan(
		&planID,
		&orgID,
		&projectID,
		&totalSheets,
		&phaseStr,
		&imagesRaw,
		&metadataRaw,
		&calloutsRaw,
		&tilesRaw,
		&validRaw,
		&errorReason,
		&errorAtRaw,
		&createdRaw,
		&updatedRaw,
		&deadlineAtRaw,
	); err != nil {
		return nil, err
	}

	state := &plan.State{
		PlanID:         planID,
		OrganizationID: orgID.String,
		ProjectID:      projectID.String,
		TotalSheets:    totalSheets,
		Phase:          plan.Phase(phaseStr),
	}

	for _, pair := range []struct {
		raw string
		dst *plan.CompletionSet
	}{
		{imagesRaw, &state.ImagesGenerated},
		{metadataRaw, &state.MetadataExtracted},
		{calloutsRaw, &state.CalloutsDetected},
		{tilesRaw, &state.TilesGenerated},
		{validRaw, &state.ValidSheets},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dst); err != nil {
			return nil, fmt.Errorf("decode completion set for plan %s: %w", planID, err)
		}
	}

	if errorReason.Valid {
		info := &plan.FailureInfo{Reason: errorReason.String}
		if errorAtRaw.Valid {
			if at, err := parseTimeString(errorAtRaw.String); err == nil {
				info.At = at
			}
		}
		state.LastError = info
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		state.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		state.UpdatedAt = updated
	}
	if deadlineAtRaw.Valid {
		if at, err := parseTimeString(deadlineAtRaw.String); err == nil {
			state.DeadlineAt = &at
		}
	}
	return state, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
