// Package engine wires the storage layer together: catalog, partition
// manager, per-partition write-ahead logs, planner, executor, and the
// background retirement and index policy loops. A restart reconstructs the
// partition map and index declarations from the catalog and replays each
// partition's log before the engine accepts traffic.
package engine

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/stayridge/stayridge/internal/archive"
	"github.com/stayridge/stayridge/internal/catalog"
	"github.com/stayridge/stayridge/internal/config"
	serrors "github.com/stayridge/stayridge/internal/errors"
	"github.com/stayridge/stayridge/internal/index"
	"github.com/stayridge/stayridge/internal/notify"
	"github.com/stayridge/stayridge/internal/observability"
	"github.com/stayridge/stayridge/internal/partition"
	"github.com/stayridge/stayridge/internal/query/executor"
	"github.com/stayridge/stayridge/internal/query/planner"
	"github.com/stayridge/stayridge/internal/retention"
	"github.com/stayridge/stayridge/internal/storage"
	"github.com/stayridge/stayridge/internal/store"
	"github.com/stayridge/stayridge/internal/wal"
	"github.com/stayridge/stayridge/pkg/types"
)

// Engine is the storage layer's single entry point. The SQL-facing layer
// holds one Engine per data directory.
type Engine struct {
	cfg *config.Config

	catalog  *catalog.Catalog
	mgr      *partition.Manager
	planner  *planner.Planner
	executor *executor.Executor
	notifier *notify.Notifier
	archiver *archive.Archiver
	stats    *observability.PredicateStats

	retirer      *retention.Daemon
	policyCancel context.CancelFunc

	mu     sync.Mutex
	logs   map[string]*wal.Log // partition ID -> its write-ahead log
	closed bool
}

// Open initializes the engine from configuration, rebuilding state from the
// catalog and the write-ahead logs.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	cat, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		return nil, err
	}

	objStore, err := openObjectStorage(ctx, cfg)
	if err != nil {
		cat.Close()
		return nil, err
	}

	stats := observability.NewPredicateStats(cfg.Query.StatsWindow)
	mgr := partition.NewManager(cfg.Partition.RequireContiguous)

	e := &Engine{
		cfg:      cfg,
		catalog:  cat,
		mgr:      mgr,
		planner:  planner.New(mgr),
		executor: executor.New(cfg.Query, stats),
		notifier: notify.NewNotifier(64),
		archiver: archive.NewArchiver(objStore, filepath.Join(cfg.DataDir, "staging")),
		stats:    stats,
		logs:     make(map[string]*wal.Log),
	}

	if err := e.recover(ctx); err != nil {
		e.closeLogs()
		cat.Close()
		return nil, err
	}

	if cfg.Partition.AutoFuture {
		if err := e.ensureFuturePartition(ctx); err != nil {
			e.closeLogs()
			cat.Close()
			return nil, err
		}
	}

	e.startBackground()
	return e, nil
}

func openObjectStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case "local":
		return storage.NewLocalStorage(cfg.Storage.Path)
	case "s3":
		return storage.NewS3Storage(ctx, cfg.Storage.S3.Bucket, storage.S3Config{
			Region:   cfg.Storage.S3.Region,
			Endpoint: cfg.Storage.S3.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// recover rebuilds the active partition set from the catalog: registries are
// re-declared from the recorded index rows, then each partition's log is
// replayed into its store, which re-populates every index through OnInsert.
func (e *Engine) recover(ctx context.Context) error {
	rows, err := e.catalog.ListActive(ctx)
	if err != nil {
		return err
	}
	indexRows, err := e.catalog.ListAllIndexes(ctx)
	if err != nil {
		return err
	}
	byPartition := make(map[string][]*catalog.IndexRow)
	for _, ir := range indexRows {
		byPartition[ir.PartitionID] = append(byPartition[ir.PartitionID], ir)
	}

	for _, row := range rows {
		p, plog, err := e.openPartition(row.PartitionID, row.Bounds)
		if err != nil {
			return err
		}

		for _, ir := range byPartition[row.PartitionID] {
			if _, err := p.DeclareIndexDeferred(ir.Definition, ir.State); err != nil {
				return err
			}
		}

		replayed, err := wal.Replay(e.walDir(row.PartitionID), func(entry *wal.Entry) error {
			return p.Restore(entry.RecordID, entry.Record)
		})
		if err != nil {
			return err
		}
		if int64(replayed) != row.RecordCount {
			log.Printf("engine: partition %s replayed %d records, catalog had %d",
				row.PartitionID, replayed, row.RecordCount)
		}

		// Replay pushed every record through OnInsert, so an index that was
		// pending at shutdown is complete now.
		for _, ir := range byPartition[row.PartitionID] {
			if ir.State != index.StatePending {
				continue
			}
			if ix, ok := p.Indexes().Get(ir.Definition.Name); ok {
				ix.MarkBackfilled()
			}
			if err := e.catalog.SetIndexState(ctx, row.PartitionID, ir.Definition.Name, index.StateBackfilled); err != nil {
				return err
			}
		}

		if err := e.mgr.Attach(p); err != nil {
			return err
		}
		e.logs[row.PartitionID] = plog
	}

	log.Printf("engine: recovered %d partitions from %s", len(rows), e.cfg.DataDir)
	return nil
}

// openPartition creates the in-memory partition handle and its log.
func (e *Engine) openPartition(id string, bounds types.Bounds) (*partition.Partition, *wal.Log, error) {
	plog, err := wal.Open(e.walDir(id), e.cfg.WAL.MaxSegmentSize, e.cfg.WAL.SyncOnAppend)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(e.cfg.Store.MaxRecordsPerPartition, plog)
	return partition.New(id, bounds, st), plog, nil
}

func (e *Engine) walDir(partitionID string) string {
	return filepath.Join(e.cfg.WAL.Dir, partitionID)
}

// ensureFuturePartition keeps an open-ended final partition so writes past
// the last explicit boundary land somewhere instead of failing.
func (e *Engine) ensureFuturePartition(ctx context.Context) error {
	low, ok := e.mgr.UpperEdge()
	if ok && low == types.OpenHigh {
		return nil // already open-ended
	}
	if !ok {
		low = time.Now().UTC().Truncate(24 * time.Hour).UnixNano()
	}
	_, err := e.ProvisionPartition(ctx, low, types.OpenHigh)
	return err
}

func (e *Engine) startBackground() {
	if e.cfg.Partition.RetentionDays > 0 && e.cfg.Partition.RetireCheckInterval > 0 {
		e.retirer = retention.NewDaemon(e, e.cfg.Partition.RetireCheckInterval)
		if err := e.retirer.Start(context.Background()); err != nil {
			log.Printf("engine: failed to start retention daemon: %v", err)
		}
	}

	if e.cfg.Index.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		e.policyCancel = cancel
		policy := index.NewPolicy(e.stats, e, e.cfg.Index)
		go policy.Run(ctx)
	}
}

// Notifier exposes the lifecycle event bus for subscribers.
func (e *Engine) Notifier() *notify.Notifier {
	return e.notifier
}

// Stats exposes the predicate frequency tracker.
func (e *Engine) Stats() *observability.PredicateStats {
	return e.stats
}

// Manager exposes the active partition set, read-only by convention.
func (e *Engine) Manager() *partition.Manager {
	return e.mgr
}

// ProvisionPartition creates a partition over the half-open [low, high)
// range, registers it in the catalog, and declares the currently known index
// definitions on it. High may be types.OpenHigh for the open-ended future
// partition.
func (e *Engine) ProvisionPartition(ctx context.Context, low, high int64) (string, error) {
	bounds, err := types.NewBounds(low, high)
	if err != nil {
		return "", err
	}
	id := PartitionName(bounds)

	p, plog, err := e.openPartition(id, bounds)
	if err != nil {
		return "", err
	}

	// The catalog row goes in before the partition starts taking writes, so
	// every record the log accepts belongs to a partition a restart will
	// replay. A crash between the two steps leaves an empty row, which
	// recovers as an empty partition.
	if err := e.catalog.RegisterPartition(ctx, &catalog.PartitionRow{
		PartitionID: id,
		Bounds:      bounds,
	}); err != nil {
		plog.Close()
		return "", err
	}

	if err := e.mgr.Attach(p); err != nil {
		plog.Close()
		if derr := e.catalog.DeletePartition(ctx, id); derr != nil {
			log.Printf("engine: failed to unwind catalog row for %s: %v", id, derr)
		}
		return "", err
	}

	// New partitions carry every declared index; they are empty, so the
	// indexes are immediately usable.
	defs, err := e.IndexDefinitions(ctx)
	if err != nil {
		return "", err
	}
	for _, def := range defs {
		if _, err := p.DeclareIndex(def); err != nil {
			return "", err
		}
		if err := e.catalog.DeclareIndex(ctx, id, def, index.StateBackfilled); err != nil {
			return "", err
		}
	}

	e.mu.Lock()
	e.logs[id] = plog
	e.mu.Unlock()

	e.notifier.Publish(notify.Event{
		Type:        notify.PartitionProvisioned,
		PartitionID: id,
		Timestamp:   time.Now().UnixNano(),
	})
	log.Printf("engine: provisioned partition %s range %s", id, bounds)
	return id, nil
}

// PartitionName derives the partition identifier from its range.
func PartitionName(b types.Bounds) string {
	lowDate := time.Unix(0, b.Low).UTC().Format("20060102")
	if b.Open() {
		return "bookings_" + lowDate + "_open"
	}
	return "bookings_" + lowDate + "_" + time.Unix(0, b.High).UTC().Format("20060102")
}

// Append routes the record by its start date and stores it. The returned
// partition ID and record ID together identify the stored record. Keys
// outside every provisioned range fail with NO_PARTITION_COVERS_VALUE.
func (e *Engine) Append(ctx context.Context, record types.Record) (string, types.RecordID, error) {
	if record.EndDate < record.StartDate {
		return "", 0, serrors.New(serrors.ErrCategoryValidation, serrors.CodeInvalidRecord,
			fmt.Sprintf("end date %d precedes start date %d", record.EndDate, record.StartDate))
	}

	p, err := e.mgr.Resolve(record.StartDate)
	if err != nil {
		return "", 0, err
	}

	id, err := p.Append(record)
	if err != nil {
		return "", 0, err
	}

	if err := e.catalog.UpdateRecordCount(ctx, p.ID(), int64(p.RecordCount())); err != nil {
		// The record is durable in the WAL; the count is advisory and is
		// reconciled on the next restart.
		log.Printf("engine: failed to update record count for %s: %v", p.ID(), err)
	}
	return p.ID(), id, nil
}

// Query plans and executes a descriptor, returning one ordered page.
func (e *Engine) Query(ctx context.Context, d *types.Descriptor) (*types.Result, error) {
	plan, err := e.planner.BuildPlan(d)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, plan)
}

// Fetch returns a single record by its partition and record identifiers.
func (e *Engine) Fetch(partitionID string, id types.RecordID) (types.Record, error) {
	p, err := e.mgr.Get(partitionID)
	if err != nil {
		return types.Record{}, err
	}
	return p.Store().Fetch(id)
}

// DeclareIndex declares and backfills an index on every active partition and
// records it in the catalog. Part of the index.Admin surface.
func (e *Engine) DeclareIndex(ctx context.Context, def index.Definition) error {
	for _, p := range e.mgr.All() {
		if err := e.catalog.DeclareIndex(ctx, p.ID(), def, index.StatePending); err != nil {
			return err
		}
		e.notifier.Publish(notify.Event{
			Type:        notify.IndexDeclared,
			PartitionID: p.ID(),
			IndexName:   def.Name,
			Timestamp:   time.Now().UnixNano(),
		})

		if _, err := p.DeclareIndex(def); err != nil {
			return err
		}
		if err := e.catalog.SetIndexState(ctx, p.ID(), def.Name, index.StateBackfilled); err != nil {
			return err
		}
		e.notifier.Publish(notify.Event{
			Type:        notify.IndexBackfilled,
			PartitionID: p.ID(),
			IndexName:   def.Name,
			Timestamp:   time.Now().UnixNano(),
		})
	}
	return nil
}

// DropIndex removes an index from every active partition. Part of the
// index.Admin surface.
func (e *Engine) DropIndex(ctx context.Context, name string) error {
	found := false
	for _, p := range e.mgr.All() {
		err := p.DropIndex(name)
		if serrors.IsCode(err, serrors.CodeIndexNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		found = true
		if err := e.catalog.DropIndex(ctx, p.ID(), name); err != nil {
			return err
		}
		e.notifier.Publish(notify.Event{
			Type:        notify.IndexDropped,
			PartitionID: p.ID(),
			IndexName:   name,
			Timestamp:   time.Now().UnixNano(),
		})
	}
	if !found {
		return serrors.New(serrors.ErrCategoryIndex, serrors.CodeIndexNotFound,
			fmt.Sprintf("index %q not declared on any active partition", name))
	}
	return nil
}

// IndexDefinitions lists the distinct index definitions declared across
// active partitions. Part of the index.Admin surface.
func (e *Engine) IndexDefinitions(ctx context.Context) ([]index.Definition, error) {
	rows, err := e.catalog.ListAllIndexes(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool, e.mgr.Len())
	for _, p := range e.mgr.All() {
		active[p.ID()] = true
	}

	seen := make(map[string]bool)
	var defs []index.Definition
	for _, row := range rows {
		if !active[row.PartitionID] || seen[row.Definition.Name] {
			continue
		}
		seen[row.Definition.Name] = true
		defs = append(defs, row.Definition)
	}
	return defs, nil
}

// Retire removes a partition from the active set, archives its records to
// object storage, and marks it retired in the catalog. The partition's range
// must lie entirely before the retention horizon. Returns the archived
// record count for bookkeeping.
func (e *Engine) Retire(ctx context.Context, partitionID string) (int, error) {
	horizon := time.Now().AddDate(0, 0, -e.cfg.Partition.RetentionDays)
	return e.retire(ctx, partitionID, horizon)
}

func (e *Engine) retire(ctx context.Context, partitionID string, horizon time.Time) (int, error) {
	// Pulling the partition out of the active set first freezes its record
	// set for the archive pass. Until MarkRetired commits, the retirement is
	// provisional: any failure reinstates the partition so its records never
	// leave the query path.
	p, err := e.mgr.Retire(partitionID, horizon)
	if err != nil {
		return 0, err
	}
	count := p.RecordCount()

	objectPath, err := e.archiver.Archive(ctx, p)
	if err != nil {
		e.reinstate(p)
		return 0, err
	}
	if err := e.catalog.MarkRetired(ctx, partitionID, objectPath); err != nil {
		e.reinstate(p)
		return 0, err
	}

	e.mu.Lock()
	plog := e.logs[partitionID]
	delete(e.logs, partitionID)
	e.mu.Unlock()

	if plog != nil {
		if err := plog.Close(); err != nil {
			log.Printf("engine: failed to close log for retired partition %s: %v", partitionID, err)
		}
	}
	if err := wal.Remove(e.walDir(partitionID)); err != nil {
		log.Printf("engine: failed to remove log directory for %s: %v", partitionID, err)
	}

	e.notifier.Publish(notify.Event{
		Type:        notify.PartitionRetired,
		PartitionID: partitionID,
		Timestamp:   time.Now().UnixNano(),
	})
	log.Printf("engine: retired partition %s (%d records), archive at %s", partitionID, count, objectPath)
	return count, nil
}

// reinstate puts a provisionally retired partition back into service. The
// bounds were valid before the removal, so re-attachment cannot conflict.
func (e *Engine) reinstate(p *partition.Partition) {
	p.Reinstate()
	if err := e.mgr.Attach(p); err != nil {
		log.Printf("engine: failed to reinstate partition %s after retirement error: %v", p.ID(), err)
	}
}

// RetireEligible retires every partition whose range falls entirely before
// the retention horizon. Individual failures are logged and skipped so one
// stuck partition cannot block the rest. Drives the retention daemon.
func (e *Engine) RetireEligible(ctx context.Context) ([]string, error) {
	horizon := time.Now().AddDate(0, 0, -e.cfg.Partition.RetentionDays)

	var retired []string
	for _, p := range e.mgr.RetireCandidates(horizon) {
		if _, err := e.retire(ctx, p.ID(), horizon); err != nil {
			log.Printf("engine: failed to retire partition %s: %v", p.ID(), err)
			continue
		}
		retired = append(retired, p.ID())
	}
	return retired, nil
}

// ReadArchive loads a retired partition's records from object storage.
func (e *Engine) ReadArchive(ctx context.Context, partitionID string) (types.Bounds, []archive.Entry, error) {
	row, err := e.catalog.GetPartition(ctx, partitionID)
	if err != nil {
		return types.Bounds{}, nil, err
	}
	if !row.Retired() || row.ArchivePath == nil {
		return types.Bounds{}, nil, serrors.New(serrors.ErrCategoryPartition, serrors.CodePartitionNotFound,
			fmt.Sprintf("partition %s is not archived", partitionID))
	}
	return e.archiver.ReadSegment(ctx, *row.ArchivePath)
}

func (e *Engine) closeLogs() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, plog := range e.logs {
		if err := plog.Close(); err != nil {
			log.Printf("engine: failed to close log for %s: %v", id, err)
		}
	}
	e.logs = make(map[string]*wal.Log)
}

// Close stops the background loops and releases the catalog and every open
// log. The engine is unusable afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.retirer != nil {
		if err := e.retirer.Stop(); err != nil {
			log.Printf("engine: retention daemon stop error: %v", err)
		}
	}
	if e.policyCancel != nil {
		e.policyCancel()
	}

	e.closeLogs()
	return e.catalog.Close()
}
