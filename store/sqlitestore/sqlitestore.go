// Package sqlitestore is the durable Store implementation on SQLite
// (modernc.org/sqlite, pure Go, no cgo).
//
// Embeddings are stored as little-endian float32 blobs and similarity is
// computed in Go over the owner's full set: an owner's memory fits in a
// single query pass, and exact scoring is the contract.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mnemosyne-ai/mnemosyne/core"
	"github.com/mnemosyne-ai/mnemosyne/oracle"
	"github.com/mnemosyne-ai/mnemosyne/store"
)

// timeLayout is RFC3339 with fixed-width fractional seconds. RFC3339Nano
// drops trailing zeros, which breaks lexicographic MAX over TEXT columns
// ("...T10:00:00Z" sorts above the later "...T10:00:00.5Z"); the padded
// form keeps TEXT order identical to time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists an owner's memory in a SQLite database.
type Store struct {
	db   *sql.DB
	dims int
}

// Open opens or creates the database at path for embeddings of the given
// dimension.
func Open(path string, dims int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db, dims: dims}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id               TEXT PRIMARY KEY,
		owner_id         TEXT NOT NULL,
		conversation_ref TEXT,
		content          TEXT NOT NULL,
		category         TEXT NOT NULL,
		embedding        BLOB NOT NULL,
		valence          REAL NOT NULL,
		importance       REAL NOT NULL,
		tags             TEXT,
		created_at       TEXT NOT NULL,
		related_ids      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_id, created_at);

	CREATE TABLE IF NOT EXISTS emotions (
		owner_id  TEXT NOT NULL,
		valence   REAL NOT NULL,
		arousal   REAL NOT NULL,
		dominant  TEXT,
		secondary TEXT,
		intensity REAL NOT NULL,
		ts        TEXT NOT NULL,
		snippet   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_emotions_owner ON emotions(owner_id, ts);

	CREATE TABLE IF NOT EXISTS themes (
		owner_id       TEXT NOT NULL,
		theme          TEXT NOT NULL,
		frequency      INTEGER NOT NULL DEFAULT 0,
		last_mentioned TEXT NOT NULL,
		PRIMARY KEY (owner_id, theme)
	);

	CREATE TABLE IF NOT EXISTS recalls (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL,
		memory_id     TEXT NOT NULL,
		query_context TEXT,
		signals       TEXT NOT NULL,
		score         REAL NOT NULL,
		ts            TEXT NOT NULL,
		consumed      INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_recalls_owner ON recalls(owner_id, ts);

	CREATE TABLE IF NOT EXISTS clusters (
		id               TEXT PRIMARY KEY,
		owner_id         TEXT NOT NULL,
		themes           TEXT NOT NULL,
		centroid         REAL NOT NULL,
		dominant_phase   TEXT,
		strength         REAL NOT NULL,
		member_ids       TEXT,
		last_activated   TEXT NOT NULL,
		activation_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_clusters_owner ON clusters(owner_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutMemory persists a new memory record.
func (s *Store) PutMemory(ctx context.Context, rec *core.MemoryRecord) error {
	if len(rec.Embedding) != s.dims {
		return fmt.Errorf("%w: embedding has %d dimensions, store expects %d",
			core.ErrValidation, len(rec.Embedding), s.dims)
	}

	tags, _ := json.Marshal(rec.Tags)
	related, _ := json.Marshal(rec.RelatedMemoryIDs)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, owner_id, conversation_ref, content, category, embedding,
		                       valence, importance, tags, created_at, related_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.ConversationRef, rec.Content, string(rec.Category),
		encodeVector(rec.Embedding), rec.EmotionalValence, rec.Importance,
		string(tags), rec.CreatedAt.UTC().Format(timeLayout), string(related))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// Memory fetches one record.
func (s *Store) Memory(ctx context.Context, ownerID, id string) (*core.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		memorySelect+` WHERE owner_id = ? AND id = ?`, ownerID, id)
	rec, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: memory %s", core.ErrNotFound, id)
	}
	return rec, err
}

// Memories returns every record for an owner, oldest first.
func (s *Store) Memories(ctx context.Context, ownerID string) ([]*core.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		memorySelect+` WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LinkMemories appends related-memory references to an existing record.
func (s *Store) LinkMemories(ctx context.Context, ownerID, id string, relatedIDs []string) error {
	rec, err := s.Memory(ctx, ownerID, id)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(rec.RelatedMemoryIDs))
	for _, rid := range rec.RelatedMemoryIDs {
		existing[rid] = true
	}
	merged := rec.RelatedMemoryIDs
	for _, rid := range relatedIDs {
		if rid != id && !existing[rid] {
			merged = append(merged, rid)
			existing[rid] = true
		}
	}
	b, _ := json.Marshal(merged)
	_, err = s.db.ExecContext(ctx,
		`UPDATE memories SET related_ids = ? WHERE owner_id = ? AND id = ?`,
		string(b), ownerID, id)
	return err
}

// SemanticSearch returns the closest records by cosine similarity.
func (s *Store) SemanticSearch(ctx context.Context, ownerID string, embedding []float32, limit int) ([]store.SemanticMatch, error) {
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, store expects %d",
			core.ErrValidation, len(embedding), s.dims)
	}

	records, err := s.Memories(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	matches := make([]store.SemanticMatch, 0, len(records))
	for _, rec := range records {
		matches = append(matches, store.SemanticMatch{
			Record:     rec,
			Similarity: oracle.Cosine(embedding, rec.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// PutEmotion appends one emotional data point.
func (s *Store) PutEmotion(ctx context.Context, pt *core.EmotionalDataPoint) error {
	secondary, _ := json.Marshal(pt.SecondaryEmotions)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO emotions (owner_id, valence, arousal, dominant, secondary, intensity, ts, snippet)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pt.OwnerID, pt.Valence, pt.Arousal, pt.DominantEmotion, string(secondary),
		pt.Intensity, pt.Timestamp.UTC().Format(timeLayout), pt.ContextSnippet)
	return err
}

// Emotions returns an owner's emotional data points, oldest first.
func (s *Store) Emotions(ctx context.Context, ownerID string) ([]core.EmotionalDataPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, valence, arousal, dominant, secondary, intensity, ts, snippet
		 FROM emotions WHERE owner_id = ? ORDER BY ts`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.EmotionalDataPoint
	for rows.Next() {
		var pt core.EmotionalDataPoint
		var secondary sql.NullString
		var dominant, snippet sql.NullString
		var ts string
		if err := rows.Scan(&pt.OwnerID, &pt.Valence, &pt.Arousal, &dominant,
			&secondary, &pt.Intensity, &ts, &snippet); err != nil {
			return nil, err
		}
		pt.DominantEmotion = dominant.String
		pt.ContextSnippet = snippet.String
		pt.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if secondary.Valid {
			json.Unmarshal([]byte(secondary.String), &pt.SecondaryEmotions)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// BumpTheme atomically increments a theme counter. The upsert makes the
// read-increment-write safe under concurrent extraction.
func (s *Store) BumpTheme(ctx context.Context, ownerID, theme string, at time.Time) error {
	ts := at.UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO themes (owner_id, theme, frequency, last_mentioned)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(owner_id, theme) DO UPDATE SET
		   frequency = frequency + 1,
		   last_mentioned = MAX(last_mentioned, excluded.last_mentioned)`,
		ownerID, theme, ts)
	return err
}

// ResetTheme zeroes a theme's frequency.
func (s *Store) ResetTheme(ctx context.Context, ownerID, theme string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE themes SET frequency = 0 WHERE owner_id = ? AND theme = ?`,
		ownerID, theme)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: theme %s", core.ErrNotFound, theme)
	}
	return nil
}

// Themes returns an owner's theme counters.
func (s *Store) Themes(ctx context.Context, ownerID string) ([]core.ThemeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, theme, frequency, last_mentioned
		 FROM themes WHERE owner_id = ? ORDER BY theme`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ThemeRecord
	for rows.Next() {
		var tr core.ThemeRecord
		var ts string
		if err := rows.Scan(&tr.OwnerID, &tr.Theme, &tr.Frequency, &ts); err != nil {
			return nil, err
		}
		tr.LastMentioned, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// AppendRecall appends one recall event.
func (s *Store) AppendRecall(ctx context.Context, ev *core.RecallEvent) error {
	signals, _ := json.Marshal(ev.Signals)
	consumed := 0
	if ev.Consumed {
		consumed = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recalls (id, owner_id, memory_id, query_context, signals, score, ts, consumed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OwnerID, ev.MemoryID, ev.QueryContext, string(signals),
		ev.RelevanceScore, ev.Timestamp.UTC().Format(timeLayout), consumed)
	return err
}

// Recalls returns an owner's recall events, oldest first.
func (s *Store) Recalls(ctx context.Context, ownerID string) ([]core.RecallEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, memory_id, query_context, signals, score, ts, consumed
		 FROM recalls WHERE owner_id = ? ORDER BY ts`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.RecallEvent
	for rows.Next() {
		var ev core.RecallEvent
		var signals, ts string
		var consumed int
		if err := rows.Scan(&ev.ID, &ev.OwnerID, &ev.MemoryID, &ev.QueryContext,
			&signals, &ev.RelevanceScore, &ts, &consumed); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(signals), &ev.Signals)
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		ev.Consumed = consumed != 0
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MarkRecallConsumed flags a recall event as consumed.
func (s *Store) MarkRecallConsumed(ctx context.Context, ownerID, eventID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recalls SET consumed = 1 WHERE owner_id = ? AND id = ?`,
		ownerID, eventID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: recall event %s", core.ErrNotFound, eventID)
	}
	return nil
}

// ReplaceClusters swaps an owner's entire cluster set in one transaction.
func (s *Store) ReplaceClusters(ctx context.Context, ownerID string, clusters []core.MemoryCluster) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clusters WHERE owner_id = ?`, ownerID); err != nil {
		return err
	}
	for _, c := range clusters {
		themes, _ := json.Marshal(c.Themes)
		members, _ := json.Marshal(c.MemberIDs)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO clusters (id, owner_id, themes, centroid, dominant_phase, strength,
			                       member_ids, last_activated, activation_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, ownerID, string(themes), c.EmotionalCentroid, c.DominantPhase,
			c.Strength, string(members),
			c.LastActivated.UTC().Format(timeLayout), c.ActivationCount)
		if err != nil {
			return fmt.Errorf("insert cluster: %w", err)
		}
	}
	return tx.Commit()
}

// Clusters returns the owner's cluster set from the last clustering run.
func (s *Store) Clusters(ctx context.Context, ownerID string) ([]core.MemoryCluster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, themes, centroid, dominant_phase, strength,
		        member_ids, last_activated, activation_count
		 FROM clusters WHERE owner_id = ? ORDER BY strength DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.MemoryCluster
	for rows.Next() {
		var c core.MemoryCluster
		var themes, members, ts string
		var phase sql.NullString
		if err := rows.Scan(&c.ID, &c.OwnerID, &themes, &c.EmotionalCentroid,
			&phase, &c.Strength, &members, &ts, &c.ActivationCount); err != nil {
			return nil, err
		}
		c.DominantPhase = phase.String
		json.Unmarshal([]byte(themes), &c.Themes)
		json.Unmarshal([]byte(members), &c.MemberIDs)
		c.LastActivated, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActivateCluster bumps a cluster's activation count and timestamp.
func (s *Store) ActivateCluster(ctx context.Context, ownerID, clusterID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clusters SET activation_count = activation_count + 1, last_activated = ?
		 WHERE owner_id = ? AND id = ?`,
		time.Now().UTC().Format(timeLayout), ownerID, clusterID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: cluster %s", core.ErrNotFound, clusterID)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const memorySelect = `SELECT id, owner_id, conversation_ref, content, category, embedding,
       valence, importance, tags, created_at, related_ids FROM memories`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (*core.MemoryRecord, error) {
	var rec core.MemoryRecord
	var category, createdAt string
	var conversationRef, tags, related sql.NullString
	var blob []byte

	err := row.Scan(&rec.ID, &rec.OwnerID, &conversationRef, &rec.Content, &category,
		&blob, &rec.EmotionalValence, &rec.Importance, &tags, &createdAt, &related)
	if err != nil {
		return nil, err
	}

	rec.ConversationRef = conversationRef.String
	rec.Category = core.Category(category)
	rec.Embedding = decodeVector(blob)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &rec.Tags)
	}
	if related.Valid {
		json.Unmarshal([]byte(related.String), &rec.RelatedMemoryIDs)
	}
	return &rec, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
