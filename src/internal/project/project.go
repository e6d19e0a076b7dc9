// Package project keeps the open projects of a vizier instance.
//
// A project is a viztrail together with the datastore and filestore its modules use.  A Registry
// is opened over a viztrail.Store and an object storage bucket, loads every stored viztrail, and
// owns the store until it is closed.
package project

import (
	"context"
	"sort"
	"sync"

	"github.com/vizierdb/vizier/src/internal/datastore"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/filestore"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/obj"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by a closed registry.
var ErrClosed = errors.New("project registry is closed")

const loadConcurrency = 8

// Project is an open project.
type Project struct {
	ID        string
	Viztrail  *viztrail.Viztrail
	Datastore datastore.Datastore
	Filestore *filestore.Filestore
}

// Options configure a registry.
type Options struct {
	// DatasetCacheSize is the number of decoded dataset snapshots each project keeps in memory.
	DatasetCacheSize int
}

// Registry holds every open project.
type Registry struct {
	store  viztrail.Store
	bucket *obj.Bucket
	opts   Options

	mu       sync.RWMutex
	projects map[string]*Project
	closed   bool
}

func datastorePrefix(id string) string { return "projects/" + id + "/datastore/" }
func filestorePrefix(id string) string { return "projects/" + id + "/filestore/" }

// Open loads every project in store.  Datasets and files live in bucket.
func Open(ctx context.Context, store viztrail.Store, bucket *obj.Bucket, opts Options) (*Registry, error) {
	r := &Registry{
		store:    store,
		bucket:   bucket,
		opts:     opts,
		projects: make(map[string]*Project),
	}
	ids, err := store.ListViztrails(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list projects")
	}
	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(loadConcurrency)
	for _, id := range ids {
		id := id
		eg.Go(func() error {
			vt, err := store.LoadViztrail(gctx, id)
			if err != nil {
				return errors.Wrapf(err, "load project %s", id)
			}
			p, err := r.newProject(vt)
			if err != nil {
				return err
			}
			mu.Lock()
			r.projects[id] = p
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.EnsureStack(err)
	}
	log.Info(ctx, "opened project registry", zap.Int("projects", len(r.projects)))
	return r, nil
}

func (r *Registry) newProject(vt *viztrail.Viztrail) (*Project, error) {
	ds, err := datastore.NewBucketStore(r.bucket, datastorePrefix(vt.ID), r.opts.DatasetCacheSize)
	if err != nil {
		return nil, err
	}
	return &Project{
		ID:        vt.ID,
		Viztrail:  vt,
		Datastore: ds,
		Filestore: filestore.New(r.bucket, filestorePrefix(vt.ID)),
	}, nil
}

// Store returns the store projects are persisted in.
func (r *Registry) Store() viztrail.Store {
	return r.store
}

// Create creates and persists a project with an empty default branch.
func (r *Registry) Create(ctx context.Context, props map[string]string) (*Project, error) {
	vt, err := viztrail.New(props)
	if err != nil {
		return nil, err
	}
	p, err := r.newProject(vt)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if err := r.store.CreateViztrail(ctx, vt); err != nil {
		return nil, errors.Wrap(err, "create project")
	}
	r.projects[vt.ID] = p
	log.Info(ctx, "created project", zap.String("project", vt.ID), log.Properties("properties", vt.Properties()))
	return p, nil
}

// Get returns an open project.
func (r *Registry) Get(id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	p, ok := r.projects[id]
	if !ok {
		return nil, &viztrail.NotFoundError{Kind: "project", ID: id}
	}
	return p, nil
}

// List returns every open project, oldest first.
func (r *Registry) List() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Viztrail, result[j].Viztrail
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return result
}

// Delete removes a project with its datasets and files.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.projects[id]; !ok {
		return &viztrail.NotFoundError{Kind: "project", ID: id}
	}
	if err := r.store.DeleteViztrail(ctx, id); err != nil {
		return errors.Wrapf(err, "delete project %s", id)
	}
	delete(r.projects, id)
	if err := obj.DeletePrefix(ctx, r.bucket, "projects/"+id+"/"); err != nil {
		return errors.Wrapf(err, "delete data of project %s", id)
	}
	log.Info(ctx, "deleted project", zap.String("project", id))
	return nil
}

// Close closes the registry and its store.  Projects handed out earlier must not be used
// afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.projects = nil
	return errors.EnsureStack(r.store.Close())
}
