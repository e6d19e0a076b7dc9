package datastore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/obj"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

var (
	cacheHitMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vizier",
		Subsystem: "datastore_cache",
		Name:      "hits_total",
		Help:      "Number of dataset reads served from cache",
	})
	cacheMissMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vizier",
		Subsystem: "datastore_cache",
		Name:      "misses_total",
		Help:      "Number of dataset reads that went to object storage",
	})
	datasetsCreatedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vizier",
		Subsystem: "datastore",
		Name:      "datasets_created_total",
		Help:      "Number of new dataset snapshots written",
	})
)

var _ Datastore = &BucketStore{}

// BucketStore keeps snapshots as JSON objects named by their identifier under a bucket prefix,
// with an LRU cache of decoded snapshots in front.
type BucketStore struct {
	bucket *obj.Bucket
	prefix string
	cache  *lru.Cache[string, *Dataset]
}

// NewBucketStore returns a datastore rooted at prefix in bucket.  cacheSize snapshots are kept
// decoded in memory.
func NewBucketStore(bucket *obj.Bucket, prefix string, cacheSize int) (*BucketStore, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[string, *Dataset](cacheSize)
	if err != nil {
		return nil, errors.EnsureStack(err)
	}
	return &BucketStore{bucket: bucket, prefix: prefix, cache: cache}, nil
}

func (s *BucketStore) key(id string) string {
	return s.prefix + id + ".json"
}

// GetDataset implements Datastore.
func (s *BucketStore) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	if ds, ok := s.cache.Get(id); ok {
		cacheHitMetric.Inc()
		return ds, nil
	}
	cacheMissMetric.Inc()
	ds := &Dataset{}
	if err := obj.ReadJSON(ctx, s.bucket, s.key(id), ds); err != nil {
		if obj.IsNotExist(err) {
			return nil, &DatasetNotFoundError{ID: id}
		}
		return nil, errors.Wrapf(err, "get dataset %s", id)
	}
	s.cache.Add(id, ds)
	return ds, nil
}

// GetDescriptor implements Datastore.
func (s *BucketStore) GetDescriptor(ctx context.Context, id string) (*Descriptor, error) {
	ds, err := s.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	d := ds.Descriptor
	return &d, nil
}

// CreateDataset implements Datastore.
func (s *BucketStore) CreateDataset(ctx context.Context, columns []Column, rows []Row, annotations []Annotation) (*Descriptor, error) {
	if err := validate(columns, rows); err != nil {
		return nil, err
	}
	ds := &Dataset{
		Descriptor: Descriptor{
			Columns:  columns,
			RowCount: len(rows),
		},
		Rows:        rows,
		Annotations: annotations,
	}
	ds = ds.Clone()
	if ds.Columns == nil {
		ds.Columns = []Column{}
	}
	if len(ds.Annotations) == 0 {
		ds.Annotations = nil
	}
	sortAnnotations(ds.Annotations)
	id, err := contentID(ds)
	if err != nil {
		return nil, err
	}
	ds.ID = id
	exists, err := s.bucket.Exists(ctx, s.key(id))
	if err != nil {
		return nil, errors.Wrapf(err, "check dataset %s", id)
	}
	if !exists {
		if err := obj.WriteJSON(ctx, s.bucket, s.key(id), ds); err != nil {
			return nil, errors.Wrap(err, "create dataset")
		}
		datasetsCreatedMetric.Inc()
		log.Debug(ctx, "created dataset", zap.String("dataset", id), zap.Int("rows", len(rows)))
	}
	s.cache.Add(id, ds)
	d := ds.Descriptor
	return &d, nil
}

// UpdateAnnotation implements Datastore.
func (s *BucketStore) UpdateAnnotation(ctx context.Context, id string, u AnnotationUpdate) (*Descriptor, error) {
	ds, err := s.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	annos := append([]Annotation(nil), ds.Annotations...)
	match := func(a Annotation, value string) bool {
		return a.ColumnID == u.ColumnID && a.RowID == u.RowID && a.Key == u.Key && a.Value == value
	}
	switch {
	case u.OldValue == "" && u.NewValue == "":
		return nil, nil
	case u.OldValue == "":
		annos = append(annos, Annotation{ColumnID: u.ColumnID, RowID: u.RowID, Key: u.Key, Value: u.NewValue})
	default:
		found := false
		for i, a := range annos {
			if match(a, u.OldValue) {
				found = true
				if u.NewValue == "" {
					annos = append(annos[:i], annos[i+1:]...)
				} else {
					annos[i].Value = u.NewValue
				}
				break
			}
		}
		if !found {
			return nil, nil
		}
	}
	return s.CreateDataset(ctx, ds.Columns, ds.Rows, annos)
}

func validate(columns []Column, rows []Row) error {
	seen := make(map[int64]bool, len(columns))
	for _, c := range columns {
		if seen[c.ID] {
			return errors.Errorf("duplicate column id %d", c.ID)
		}
		seen[c.ID] = true
	}
	seenRows := make(map[int64]bool, len(rows))
	for _, r := range rows {
		if len(r.Values) != len(columns) {
			return errors.Errorf("row %d has %d values, expected %d", r.ID, len(r.Values), len(columns))
		}
		if seenRows[r.ID] {
			return errors.Errorf("duplicate row id %d", r.ID)
		}
		seenRows[r.ID] = true
	}
	return nil
}

func sortAnnotations(annos []Annotation) {
	sort.SliceStable(annos, func(i, j int) bool {
		a, b := annos[i], annos[j]
		if a.ColumnID != b.ColumnID {
			return a.ColumnID < b.ColumnID
		}
		if a.RowID != b.RowID {
			return a.RowID < b.RowID
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Value < b.Value
	})
}

// contentID hashes the canonical encoding of everything but the identifier.
func contentID(ds *Dataset) (string, error) {
	data, err := json.Marshal(struct {
		Columns     []Column     `json:"columns"`
		Rows        []Row        `json:"rows"`
		Annotations []Annotation `json:"annotations"`
	}{ds.Columns, ds.Rows, ds.Annotations})
	if err != nil {
		return "", errors.Wrap(err, "encode dataset")
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}
