// Package vizierobj persists viztrails as JSON objects in object storage.
//
// Layout, under the store prefix:
//
//	viztrails/<viztrail>/viztrail.json
//	viztrails/<viztrail>/branches/<branch>/branch.json
//	viztrails/<viztrail>/branches/<branch>/workflows/<seq>.json
//	viztrails/<viztrail>/modules/<module>.json
//
// Workflow records list module identifiers; module records are shared by every workflow version
// and branch that references them.
package vizierobj

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/obj"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const writeConcurrency = 16

var _ viztrail.Store = (*Store)(nil)

// Store is a viztrail.Store on a bucket.
type Store struct {
	bucket *obj.Bucket
	prefix string
	owned  bool
}

// New returns a store rooted at prefix in bucket.  The bucket stays open when the store is
// closed.
func New(bucket *obj.Bucket, prefix string) *Store {
	return &Store{bucket: bucket, prefix: prefix}
}

// Open opens the bucket at storageURL and returns a store that closes it on Close.
func Open(ctx context.Context, storageURL, prefix string) (*Store, error) {
	b, err := obj.NewBucket(ctx, storageURL)
	if err != nil {
		return nil, err
	}
	return &Store{bucket: b, prefix: prefix, owned: true}, nil
}

func (s *Store) viztrailDir(vtID string) string {
	return s.prefix + "viztrails/" + vtID + "/"
}

func (s *Store) viztrailKey(vtID string) string {
	return s.viztrailDir(vtID) + "viztrail.json"
}

func (s *Store) branchDir(vtID, branchID string) string {
	return s.viztrailDir(vtID) + "branches/" + branchID + "/"
}

func (s *Store) branchKey(vtID, branchID string) string {
	return s.branchDir(vtID, branchID) + "branch.json"
}

func (s *Store) workflowKey(vtID, branchID string, seq int) string {
	return fmt.Sprintf("%sworkflows/%08d.json", s.branchDir(vtID, branchID), seq)
}

func (s *Store) moduleKey(vtID, moduleID string) string {
	return s.viztrailDir(vtID) + "modules/" + moduleID + ".json"
}

// ListViztrails implements viztrail.Store.
func (s *Store) ListViztrails(ctx context.Context) ([]string, error) {
	dirs, err := obj.List(ctx, s.bucket, s.prefix+"viztrails/", true)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, d := range dirs {
		ok, err := s.bucket.Exists(ctx, d+"viztrail.json")
		if err != nil {
			return nil, errors.Wrapf(err, "check %s", d)
		}
		if ok {
			ids = append(ids, path.Base(strings.TrimSuffix(d, "/")))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadViztrail implements viztrail.Store.
func (s *Store) LoadViztrail(ctx context.Context, id string) (*viztrail.Viztrail, error) {
	var vr viztrail.ViztrailRecord
	if err := obj.ReadJSON(ctx, s.bucket, s.viztrailKey(id), &vr); err != nil {
		if obj.IsNotExist(err) {
			return nil, &viztrail.NotFoundError{Kind: "viztrail", ID: id}
		}
		return nil, err
	}
	branchDirs, err := obj.List(ctx, s.bucket, s.viztrailDir(id)+"branches/", true)
	if err != nil {
		return nil, err
	}
	var branches []viztrail.BranchHistory
	for _, dir := range branchDirs {
		var bh viztrail.BranchHistory
		if err := obj.ReadJSON(ctx, s.bucket, dir+"branch.json", &bh.Branch); err != nil {
			if obj.IsNotExist(err) {
				// A branch directory without a record is a branch deleted half way.
				log.Info(ctx, "skipping incomplete branch", zap.String("dir", dir))
				continue
			}
			return nil, err
		}
		keys, err := obj.List(ctx, s.bucket, dir+"workflows/", false)
		if err != nil {
			return nil, err
		}
		sort.Strings(keys)
		for _, k := range keys {
			var wr viztrail.WorkflowRecord
			if err := obj.ReadJSON(ctx, s.bucket, k, &wr); err != nil {
				return nil, err
			}
			bh.Workflows = append(bh.Workflows, wr)
		}
		branches = append(branches, bh)
	}
	moduleKeys, err := obj.List(ctx, s.bucket, s.viztrailDir(id)+"modules/", false)
	if err != nil {
		return nil, err
	}
	modules := make(map[string]viztrail.ModuleRecord, len(moduleKeys))
	for _, k := range moduleKeys {
		var mr viztrail.ModuleRecord
		if err := obj.ReadJSON(ctx, s.bucket, k, &mr); err != nil {
			return nil, err
		}
		modules[mr.ID] = mr
	}
	vt, err := viztrail.Rebuild(vr, branches, modules)
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, "loaded viztrail", zap.String("viztrail", id), zap.Int("branches", len(branches)), zap.Int("modules", len(modules)))
	return vt, nil
}

// CreateViztrail implements viztrail.Store.
func (s *Store) CreateViztrail(ctx context.Context, vt *viztrail.Viztrail) error {
	for _, b := range vt.Branches() {
		if err := s.WriteBranch(ctx, vt.ID, b); err != nil {
			return err
		}
	}
	// The viztrail record goes last; ListViztrails only returns viztrails that have one.
	return s.WriteViztrail(ctx, vt)
}

// DeleteViztrail implements viztrail.Store.
func (s *Store) DeleteViztrail(ctx context.Context, id string) error {
	if err := s.bucket.Delete(ctx, s.viztrailKey(id)); err != nil && !obj.IsNotExist(err) {
		return errors.Wrapf(err, "delete viztrail %s", id)
	}
	return obj.DeletePrefix(ctx, s.bucket, s.viztrailDir(id))
}

// WriteViztrail implements viztrail.Store.
func (s *Store) WriteViztrail(ctx context.Context, vt *viztrail.Viztrail) error {
	return obj.WriteJSON(ctx, s.bucket, s.viztrailKey(vt.ID), vt.Record())
}

// WriteBranch implements viztrail.Store.
func (s *Store) WriteBranch(ctx context.Context, vtID string, b *viztrail.Branch) error {
	for seq, wf := range b.History() {
		if err := s.WriteWorkflow(ctx, vtID, b.ID, seq, wf); err != nil {
			return err
		}
	}
	return obj.WriteJSON(ctx, s.bucket, s.branchKey(vtID, b.ID), b.Record())
}

// DeleteBranch implements viztrail.Store.
func (s *Store) DeleteBranch(ctx context.Context, vtID, branchID string) error {
	if err := s.bucket.Delete(ctx, s.branchKey(vtID, branchID)); err != nil && !obj.IsNotExist(err) {
		return errors.Wrapf(err, "delete branch %s", branchID)
	}
	return obj.DeletePrefix(ctx, s.bucket, s.branchDir(vtID, branchID))
}

// WriteWorkflow implements viztrail.Store.  Modules are written before the workflow record, so a
// readable record never references a missing module.
func (s *Store) WriteWorkflow(ctx context.Context, vtID, branchID string, seq int, wf *viztrail.Workflow) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(writeConcurrency)
	for _, m := range wf.Modules() {
		m := m
		eg.Go(func() error {
			return s.WriteModule(gctx, vtID, m)
		})
	}
	if err := eg.Wait(); err != nil {
		return errors.EnsureStack(err)
	}
	return obj.WriteJSON(ctx, s.bucket, s.workflowKey(vtID, branchID, seq), wf.Record())
}

// WriteModule implements viztrail.Store.  Writes of the same module are serialized, so the
// object always ends up holding the latest record.
func (s *Store) WriteModule(ctx context.Context, vtID string, m *viztrail.Module) error {
	return m.WriteRecord(func(r viztrail.ModuleRecord) error {
		return obj.WriteJSON(ctx, s.bucket, s.moduleKey(vtID, m.ID), r)
	})
}

// Close implements viztrail.Store.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return errors.EnsureStack(s.bucket.Close())
}
