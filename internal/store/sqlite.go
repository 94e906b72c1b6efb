package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	verrors "github.com/blackvault/blackvault/internal/errors"
)

// SQLiteStore is the single embedded analytical database: item/chunk/
// embedding/connection/session tables plus an FTS5 virtual table, all in one
// file, backed by an in-process HNSW index for the vector side.
//
// Per §5, the handle is non-reentrant. storeMu is the store_lock callers
// acquire via Lock/Unlock around every read/write sequence.
type SQLiteStore struct {
	storeMu sync.Mutex

	db         *sql.DB
	dbPath     string
	vectorPath string
	dims       int
	vectors    VectorStore
}

// validateSQLiteIntegrity runs PRAGMA integrity_check against an existing
// database file, returning nil if the file does not yet exist.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Open creates or opens the Black Vault database at dbPath, with the HNSW
// vector index persisted alongside it at dbPath+".hnsw". dims is
// EMBEDDING_DIM, fixed at construction.
func Open(dbPath string, dims int) (*SQLiteStore, error) {
	inMemory := dbPath == ":memory:"

	if !inMemory {
		if validErr := validateSQLiteIntegrity(dbPath); validErr != nil {
			slog.Warn("database corrupted, removing for fresh start",
				slog.String("path", dbPath), slog.String("error", validErr.Error()))
			_ = os.Remove(dbPath)
			_ = os.Remove(dbPath + "-wal")
			_ = os.Remove(dbPath + "-shm")
		}

		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, verrors.StoreError("create database directory", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, verrors.StoreError("open database", err)
	}
	// A single connection: SQLite (even in WAL mode) is not meant for
	// concurrent writers, and the store_lock discipline above already
	// serialises every access, so a pool would only hide bugs. It is also
	// required for the ":memory:" test path, where a second connection
	// would see an empty database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, verrors.StoreError("set pragma: "+p, err)
		}
	}

	s := &SQLiteStore{
		db:         db,
		dbPath:     dbPath,
		vectorPath: dbPath + ".hnsw",
		dims:       dims,
	}
	if inMemory {
		s.vectorPath = ""
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, verrors.StoreError("initialize schema", err)
	}

	if err := s.openVectorIndex(); err != nil {
		_ = db.Close()
		return nil, verrors.StoreError("initialize vector index", err)
	}

	return s, nil
}

func (s *SQLiteStore) openVectorIndex() error {
	vs, err := NewHNSWStore(DefaultVectorStoreConfig(s.dims))
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(s.vectorPath); statErr == nil {
		if loadErr := vs.Load(s.vectorPath); loadErr != nil {
			slog.Warn("vector index unreadable, rebuilding from embeddings table",
				slog.String("error", loadErr.Error()))
			if rebuildErr := s.hydrateVectorIndex(vs); rebuildErr != nil {
				return rebuildErr
			}
		}
	} else {
		if rebuildErr := s.hydrateVectorIndex(vs); rebuildErr != nil {
			return rebuildErr
		}
	}
	s.vectors = vs
	return nil
}

// hydrateVectorIndex replays every persisted embedding into a fresh HNSW
// graph. Used on first open and on self-heal after corruption.
func (s *SQLiteStore) hydrateVectorIndex(vs VectorStore) error {
	rows, err := s.db.Query(`SELECT id, vector FROM embeddings`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return err
		}
		ids = append(ids, strconv.FormatInt(id, 10))
		vecs = append(vecs, decodeVector(raw))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return vs.Add(context.Background(), ids, vecs)
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_path TEXT NOT NULL,
		source_type TEXT NOT NULL,
		content_hash TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		source_mtime DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		enriched INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		body TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_item ON chunks(item_id);

	CREATE TABLE IF NOT EXISTS embeddings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id INTEGER NOT NULL UNIQUE REFERENCES chunks(id) ON DELETE CASCADE,
		item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		vector BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_item ON embeddings(item_id);

	CREATE TABLE IF NOT EXISTS item_embeddings (
		item_id INTEGER PRIMARY KEY REFERENCES items(id) ON DELETE CASCADE,
		vector BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunk_metadata (
		chunk_id INTEGER PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		key_terms TEXT NOT NULL DEFAULT '{}',
		entities TEXT NOT NULL DEFAULT '{}',
		questions_answered TEXT NOT NULL DEFAULT '[]',
		contextual_dependence TEXT NOT NULL DEFAULT '',
		positional_role TEXT NOT NULL DEFAULT '',
		density_score REAL NOT NULL DEFAULT 0,
		relevance_score REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS connections (
		item_a INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		item_b INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		score REAL NOT NULL,
		PRIMARY KEY (item_a, item_b)
	);

	CREATE TABLE IF NOT EXISTS session_views (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		viewed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_session_views_item ON session_views(item_id);
	CREATE INDEX IF NOT EXISTS idx_session_views_time ON session_views(viewed_at);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		body,
		content='chunks',
		content_rowid='id',
		tokenize='unicode61'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, body) VALUES (new.id, new.body);
	END;
	CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, body) VALUES ('delete', old.id, old.body);
	END;
	CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, body) VALUES ('delete', old.id, old.body);
		INSERT INTO chunks_fts(rowid, body) VALUES (new.id, new.body);
	END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Lock/Unlock implement the store_lock discipline described in §5.
func (s *SQLiteStore) Lock()   { s.storeMu.Lock() }
func (s *SQLiteStore) Unlock() { s.storeMu.Unlock() }

func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(v) * 4)
	for _, f := range v {
		_ = binary.Write(buf, binary.LittleEndian, f)
	}
	return buf.Bytes()
}

func decodeVector(raw []byte) []float32 {
	n := len(raw) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		v[i] = math.Float32frombits(bits)
	}
	return v
}

func joinTags(tags []string) string { return strings.Join(tags, ",") }

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// --- writes ---

func (s *SQLiteStore) PutItem(ctx context.Context, sourcePath string, sourceType SourceType, hash string, mtime time.Time) (int64, error) {
	var existingID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM items WHERE content_hash = ?`, hash).Scan(&existingID)
	if err == nil {
		return 0, verrors.DuplicateHash(existingID)
	}
	if err != sql.ErrNoRows {
		return 0, verrors.StoreError("check duplicate hash", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items (source_path, source_type, content_hash, source_mtime) VALUES (?, ?, ?, ?)`,
		sourcePath, string(sourceType), hash, mtime)
	if err != nil {
		return 0, verrors.StoreError("insert item", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) PutChunk(ctx context.Context, itemID int64, index int, body string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (item_id, chunk_index, body) VALUES (?, ?, ?)`, itemID, index, body)
	if err != nil {
		return 0, verrors.StoreError("insert chunk", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) PutEmbedding(ctx context.Context, chunkID, itemID int64, vector []float32) (int64, error) {
	if len(vector) != s.dims {
		return 0, verrors.New(verrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding dimension %d does not match store dimension %d", len(vector), s.dims), nil)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (chunk_id, item_id, vector) VALUES (?, ?, ?)`,
		chunkID, itemID, encodeVector(vector))
	if err != nil {
		return 0, verrors.StoreError("insert embedding", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, verrors.StoreError("insert embedding", err)
	}

	if addErr := s.addToVectorIndex(ctx, id, vector); addErr != nil {
		return 0, addErr
	}
	return id, nil
}

// addToVectorIndex performs the self-healing insertion described in §4.1:
// on any index error (including a stale key collision), force a rebuild
// from the embeddings table and retry exactly once.
func (s *SQLiteStore) addToVectorIndex(ctx context.Context, embeddingID int64, vector []float32) error {
	key := strconv.FormatInt(embeddingID, 10)
	if err := s.vectors.Add(ctx, []string{key}, [][]float32{vector}); err != nil {
		slog.Warn("vector index insert failed, rebuilding and retrying once", slog.String("error", err.Error()))
		if rebuildErr := s.RebuildVectorIndex(ctx, true); rebuildErr != nil {
			return verrors.IndexCorruption("vector index rebuild failed", rebuildErr)
		}
		if retryErr := s.vectors.Add(ctx, []string{key}, [][]float32{vector}); retryErr != nil {
			return verrors.IndexCorruption("vector index insert failed after rebuild", retryErr)
		}
	}
	return nil
}

func (s *SQLiteStore) PutConnection(ctx context.Context, a, b int64, score float64) error {
	if a == b {
		return nil
	}
	if a > b {
		a, b = b, a
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connections (item_a, item_b, score) VALUES (?, ?, ?)
		 ON CONFLICT(item_a, item_b) DO UPDATE SET score = excluded.score`,
		a, b, score)
	if err != nil {
		return verrors.StoreError("upsert connection", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateItemEnrichment(ctx context.Context, itemID int64, title, summary string, tags []string, metaVector []float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return verrors.StoreError("begin enrichment transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE items SET title = ?, summary = ?, tags = ?, enriched = 1 WHERE id = ? AND enriched = 0`,
		title, summary, joinTags(tags), itemID)
	if err != nil {
		return verrors.StoreError("update item enrichment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// already enriched or missing; enrichment is a once-only transition
		return tx.Commit()
	}

	if metaVector != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO item_embeddings (item_id, vector) VALUES (?, ?)
			 ON CONFLICT(item_id) DO UPDATE SET vector = excluded.vector`,
			itemID, encodeVector(metaVector)); err != nil {
			return verrors.StoreError("upsert item embedding", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) PutChunkMetadata(ctx context.Context, meta *ChunkMetadata) error {
	keyTerms, _ := json.Marshal(meta.KeyTerms)
	entities, _ := json.Marshal(meta.Entities)
	questions, _ := json.Marshal(meta.QuestionsAnswered)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunk_metadata (
			chunk_id, title, summary, content_type, language, tags, key_terms,
			entities, questions_answered, contextual_dependence, positional_role,
			density_score, relevance_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			title = excluded.title, summary = excluded.summary,
			content_type = excluded.content_type, language = excluded.language,
			tags = excluded.tags, key_terms = excluded.key_terms,
			entities = excluded.entities, questions_answered = excluded.questions_answered,
			contextual_dependence = excluded.contextual_dependence,
			positional_role = excluded.positional_role,
			density_score = excluded.density_score, relevance_score = excluded.relevance_score`,
		meta.ChunkID, meta.Title, meta.Summary, meta.ContentType, meta.Language,
		joinTags(meta.Tags), string(keyTerms), string(entities), string(questions),
		meta.ContextualDependence, meta.PositionalRole, meta.DensityScore, meta.RelevanceScore)
	if err != nil {
		return verrors.StoreError("upsert chunk metadata", err)
	}
	return nil
}

// --- reads ---

func scanItem(row interface {
	Scan(dest ...any) error
}) (*Item, error) {
	var it Item
	var sourceType, tags string
	var mtime sql.NullTime
	var enriched int
	if err := row.Scan(&it.ID, &it.SourcePath, &sourceType, &it.ContentHash, &it.Title, &tags,
		&it.Summary, &mtime, &it.CreatedAt, &enriched); err != nil {
		return nil, err
	}
	it.SourceType = SourceType(sourceType)
	it.Tags = splitTags(tags)
	if mtime.Valid {
		it.SourceMtime = mtime.Time
	}
	it.Enriched = enriched != 0
	return &it, nil
}

const itemColumns = `id, source_path, source_type, content_hash, title, tags, summary, source_mtime, created_at, enriched`

func (s *SQLiteStore) GetItemByHash(ctx context.Context, hash string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE content_hash = ?`, hash)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, verrors.NotFound("no item with that content hash")
	}
	if err != nil {
		return nil, verrors.StoreError("get item by hash", err)
	}
	return it, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, verrors.NotFound(fmt.Sprintf("item %d not found", id))
	}
	if err != nil {
		return nil, verrors.StoreError("get item", err)
	}
	return it, nil
}

func (s *SQLiteStore) GetItems(ctx context.Context, ids []int64) ([]*Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := intInClause(ids)
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, verrors.StoreError("get items", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, verrors.StoreError("scan item", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListItems(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at DESC`)
	if err != nil {
		return nil, verrors.StoreError("list items", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, verrors.StoreError("scan item", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetChunks(ctx context.Context, itemID int64) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, chunk_index, body FROM chunks WHERE item_id = ? ORDER BY chunk_index`, itemID)
	if err != nil {
		return nil, verrors.StoreError("get chunks", err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.ItemID, &c.Index, &c.Body); err != nil {
			return nil, verrors.StoreError("scan chunk", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetEmbeddings(ctx context.Context, itemID int64) ([]*Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chunk_id, item_id, vector FROM embeddings WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, verrors.StoreError("get embeddings", err)
	}
	defer rows.Close()

	var out []*Embedding
	for rows.Next() {
		var e Embedding
		var raw []byte
		if err := rows.Scan(&e.ID, &e.ChunkID, &e.ItemID, &raw); err != nil {
			return nil, verrors.StoreError("scan embedding", err)
		}
		e.Vector = decodeVector(raw)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetItemEmbedding(ctx context.Context, itemID int64) (*ItemEmbedding, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM item_embeddings WHERE item_id = ?`, itemID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, verrors.StoreError("get item embedding", err)
	}
	return &ItemEmbedding{ItemID: itemID, Vector: decodeVector(raw)}, nil
}

func (s *SQLiteStore) GetConnections(ctx context.Context, itemID int64) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_a, item_b, score FROM connections WHERE item_a = ? OR item_b = ? ORDER BY score DESC`,
		itemID, itemID)
	if err != nil {
		return nil, verrors.StoreError("get connections", err)
	}
	defer rows.Close()

	var out []*Connection
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.ItemA, &c.ItemB, &c.Score); err != nil {
			return nil, verrors.StoreError("scan connection", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AllItemsWithEmbeddings(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT item_id FROM embeddings`)
	if err != nil {
		return nil, verrors.StoreError("list items with embeddings", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, verrors.StoreError("scan item id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- filters ---

func intInClause(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

// buildFilterClause turns the closed Filter struct into a parameterised SQL
// fragment against the items table. This is the only place query intent
// reaches SQL: every column here is named explicitly, never interpolated
// from caller text (§9 redesign: no LLM-authored SQL).
func buildFilterClause(f Filter, alias string) (string, []any) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}
	var clauses []string
	var args []any
	if f.CreatedAfter != nil {
		clauses = append(clauses, col("created_at")+" > ?")
		args = append(args, *f.CreatedAfter)
	}
	if f.SourceType != "" {
		clauses = append(clauses, col("source_type")+" = ?")
		args = append(args, string(f.SourceType))
	}
	for _, tag := range f.Tags {
		clauses = append(clauses, col("tags")+" LIKE ?")
		args = append(args, "%"+tag+"%")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

// filteredItemIDs resolves a Filter to the set of matching item ids, or nil
// (meaning "no restriction") when the filter is empty.
func (s *SQLiteStore) filteredItemIDs(ctx context.Context, f Filter) (map[int64]bool, error) {
	if f.Empty() {
		return nil, nil
	}
	clause, args := buildFilterClause(f, "")
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM items WHERE 1=1`+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = true
	}
	return set, rows.Err()
}

// --- search ---

func (s *SQLiteStore) SearchVector(ctx context.Context, queryVec []float32, filter Filter, k int) ([]VectorHit, error) {
	allowed, err := s.filteredItemIDs(ctx, filter)
	if err != nil {
		return nil, verrors.StoreError("resolve filter", err)
	}

	// Over-fetch from the ANN index when a filter is active, since the
	// index itself is not filter-aware; this is the "post-filtered scan"
	// path described in §4.1.
	annK := k
	if allowed != nil {
		annK = k * 8
		if annK < 50 {
			annK = 50
		}
	}

	results, err := s.vectors.Search(ctx, queryVec, annK)
	if err != nil {
		return nil, verrors.StoreError("vector search", err)
	}

	hits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		embeddingID, convErr := strconv.ParseInt(r.ID, 10, 64)
		if convErr != nil {
			continue
		}
		var chunkID, itemID int64
		if err := s.db.QueryRowContext(ctx,
			`SELECT chunk_id, item_id FROM embeddings WHERE id = ?`, embeddingID).Scan(&chunkID, &itemID); err != nil {
			continue
		}
		if allowed != nil && !allowed[itemID] {
			continue
		}
		hits = append(hits, VectorHit{ItemID: itemID, ChunkID: chunkID, Similarity: r.Score})
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

func (s *SQLiteStore) SearchBM25(ctx context.Context, queryText string, filter Filter, k int) ([]BM25Hit, error) {
	query := strings.TrimSpace(queryText)
	if query == "" {
		return nil, nil
	}
	matchQuery := ftsMatchQuery(query)
	if matchQuery == "" {
		return nil, nil
	}

	allowed, err := s.filteredItemIDs(ctx, filter)
	if err != nil {
		return nil, verrors.StoreError("resolve filter", err)
	}

	annK := k
	if allowed != nil {
		annK = k * 8
		if annK < 50 {
			annK = 50
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.item_id, bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?`, matchQuery, annK)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, verrors.StoreError("bm25 search", err)
	}
	defer rows.Close()

	var hits []BM25Hit
	for rows.Next() {
		var chunkID, itemID int64
		var rawScore float64
		if err := rows.Scan(&chunkID, &itemID, &rawScore); err != nil {
			return nil, verrors.StoreError("scan bm25 result", err)
		}
		if allowed != nil && !allowed[itemID] {
			continue
		}
		// FTS5 bm25() returns negative values, more negative = better match.
		hits = append(hits, BM25Hit{ItemID: itemID, ChunkID: chunkID, Score: -rawScore})
		if len(hits) >= k {
			break
		}
	}
	return hits, rows.Err()
}

// ftsMatchQuery quotes each term so punctuation in user queries (including
// FTS5 operators like `-`) cannot change query structure.
func ftsMatchQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		if f != "" {
			terms = append(terms, `"`+f+`"`)
		}
	}
	return strings.Join(terms, " OR ")
}

func (s *SQLiteStore) RecentItemsMatching(ctx context.Context, filter Filter, k int) ([]*Item, error) {
	clause, args := buildFilterClause(filter, "")
	args = append(args, k)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE 1=1`+clause+` ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, verrors.StoreError("recent items matching filter", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, verrors.StoreError("scan item", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- deletion ---

// DeleteItem cascades in the order specified by §3: session views, item
// embedding, connections, embeddings, chunk metadata, chunks, item. The
// chunks/embeddings/chunk_metadata/session_views/item_embeddings rows also
// carry ON DELETE CASCADE foreign keys as a second line of defence, but the
// explicit ordering here keeps the vector index and FTS table in sync too.
func (s *SQLiteStore) DeleteItem(ctx context.Context, id int64) error {
	embeddingIDs, err := s.embeddingIDsForItem(ctx, id)
	if err != nil {
		return verrors.StoreError("list embeddings for delete", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return verrors.StoreError("begin delete transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM session_views WHERE item_id = ?`, []any{id}},
		{`DELETE FROM item_embeddings WHERE item_id = ?`, []any{id}},
		{`DELETE FROM connections WHERE item_a = ? OR item_b = ?`, []any{id, id}},
		{`DELETE FROM embeddings WHERE item_id = ?`, []any{id}},
		{`DELETE FROM chunk_metadata WHERE chunk_id IN (SELECT id FROM chunks WHERE item_id = ?)`, []any{id}},
		{`DELETE FROM chunks WHERE item_id = ?`, []any{id}},
		{`DELETE FROM items WHERE id = ?`, []any{id}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return verrors.StoreError("delete cascade step", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return verrors.StoreError("commit delete", err)
	}

	if len(embeddingIDs) > 0 {
		keys := make([]string, len(embeddingIDs))
		for i, eid := range embeddingIDs {
			keys[i] = strconv.FormatInt(eid, 10)
		}
		if err := s.vectors.Delete(ctx, keys); err != nil {
			slog.Warn("vector index delete failed", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (s *SQLiteStore) embeddingIDsForItem(ctx context.Context, itemID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM embeddings WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- index lifecycle ---

func (s *SQLiteStore) RebuildVectorIndex(ctx context.Context, force bool) error {
	fresh, err := NewHNSWStore(DefaultVectorStoreConfig(s.dims))
	if err != nil {
		return verrors.IndexCorruption("create fresh vector index", err)
	}
	if err := s.hydrateVectorIndex(fresh); err != nil {
		return verrors.IndexCorruption("hydrate vector index", err)
	}
	if s.vectors != nil {
		_ = s.vectors.Close()
	}
	s.vectors = fresh
	if s.vectorPath != "" {
		if err := fresh.Save(s.vectorPath); err != nil {
			slog.Warn("persist rebuilt vector index", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *SQLiteStore) RebuildTextIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO chunks_fts(chunks_fts) VALUES ('rebuild')`)
	if err != nil {
		return verrors.IndexCorruption("rebuild text index", err)
	}
	return nil
}

// --- sessions ---

func (s *SQLiteStore) LogView(ctx context.Context, itemID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO session_views (item_id) VALUES (?)`, itemID)
	if err != nil {
		return verrors.StoreError("log view", err)
	}
	return nil
}

// RecentSessionVector returns the length-normalised mean of the k most
// recently viewed items' metadata vectors, or nil if none have one.
func (s *SQLiteStore) RecentSessionVector(ctx context.Context, k int) ([]float32, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ie.vector
		FROM session_views sv
		JOIN item_embeddings ie ON ie.item_id = sv.item_id
		ORDER BY sv.viewed_at DESC
		LIMIT ?`, k)
	if err != nil {
		return nil, verrors.StoreError("recent session vector", err)
	}
	defer rows.Close()

	var sum []float64
	var count int
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, verrors.StoreError("scan session vector", err)
		}
		vec := decodeVector(raw)
		if sum == nil {
			sum = make([]float64, len(vec))
		}
		for i, f := range vec {
			if i < len(sum) {
				sum[i] += float64(f)
			}
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, verrors.StoreError("scan session vectors", err)
	}
	if count == 0 {
		return nil, nil
	}

	mean := make([]float32, len(sum))
	var normSq float64
	for i, v := range sum {
		mean[i] = float32(v / float64(count))
		normSq += float64(mean[i]) * float64(mean[i])
	}
	if normSq == 0 {
		return mean, nil
	}
	norm := math.Sqrt(normSq)
	for i := range mean {
		mean[i] = float32(float64(mean[i]) / norm)
	}
	return mean, nil
}

func (s *SQLiteStore) Close() error {
	var firstErr error
	if s.vectors != nil {
		if s.vectorPath != "" {
			if err := s.vectors.Save(s.vectorPath); err != nil {
				firstErr = err
			}
		}
		_ = s.vectors.Close()
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var _ Store = (*SQLiteStore)(nil)

// CosineSimilarity is exported for the Connector and Consolidator, which
// both rank items by mean-vector similarity outside the store package.
func CosineSimilarity(a, b []float32) float32 { return cosineSimilarity(a, b) }
