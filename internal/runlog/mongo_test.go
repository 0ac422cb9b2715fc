package runlog

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hdlmesh/taskmesh/internal/hooks"
)

func TestMongoStoreAppendAssignsID(t *testing.T) {
	t.Parallel()

	oid := mustOID(t, "000000000000000000000001")
	coll := &fakeCollection{insertedID: oid}
	s := &MongoStore{coll: coll}

	e := &Event{
		RunID:     "run-1",
		NodeID:    "node-a",
		TaskID:    "task-1",
		Type:      hooks.EventNodeTransition,
		Payload:   []byte(`{"ok":true}`),
		Timestamp: time.Unix(1, 0).UTC(),
	}
	err := s.Append(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), e.ID)
}

func TestMongoStoreAppendRequiresTimestampDefaulting(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{insertedID: mustOID(t, "000000000000000000000002")}
	s := &MongoStore{coll: coll}

	e := &Event{RunID: "run-1", Type: hooks.EventTaskPublished}
	require.NoError(t, s.Append(context.Background(), e))
	assert.False(t, e.Timestamp.IsZero())
}

func TestMongoStoreListNextCursor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		eventCount int
		limit      int
		wantNext   string
	}{
		{name: "fewer_than_limit", eventCount: 2, limit: 3, wantNext: ""},
		{name: "exactly_limit_no_more", eventCount: 3, limit: 3, wantNext: ""},
		{name: "more_than_limit_has_next", eventCount: 4, limit: 3, wantNext: "000000000000000000000003"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runID := "run-1"
			coll := &fakeCollection{findDocs: fakeEventDocuments(runID, tc.eventCount)}
			s := &MongoStore{coll: coll}

			page, err := s.List(context.Background(), runID, "", tc.limit)
			require.NoError(t, err)
			assert.Len(t, page.Events, min(tc.eventCount, tc.limit))
			assert.Equal(t, tc.wantNext, page.NextCursor)

			if tc.wantNext == "" {
				return
			}
			next, err := s.List(context.Background(), runID, page.NextCursor, tc.limit)
			require.NoError(t, err)
			assert.Len(t, next.Events, tc.eventCount-tc.limit)
			assert.Empty(t, next.NextCursor)
		})
	}
}

func TestMongoStoreListRejectsZeroLimit(t *testing.T) {
	t.Parallel()
	s := &MongoStore{coll: &fakeCollection{}}
	_, err := s.List(context.Background(), "run-1", "", 0)
	assert.Error(t, err)
}

func fakeEventDocuments(runID string, n int) []eventDocument {
	docs := make([]eventDocument, 0, n)
	for i := 1; i <= n; i++ {
		var raw [12]byte
		raw[11] = byte(i)
		docs = append(docs, eventDocument{
			ID:        bson.ObjectID(raw),
			RunID:     runID,
			NodeID:    "node-a",
			TaskID:    "task-1",
			Type:      string(hooks.EventNodeTransition),
			Payload:   []byte(`{}`),
			Timestamp: time.Unix(int64(i), 0).UTC(),
		})
	}
	return docs
}

func mustOID(t *testing.T, hex string) bson.ObjectID {
	t.Helper()
	oid, err := bson.ObjectIDFromHex(hex)
	require.NoError(t, err)
	return oid
}

type fakeCollection struct {
	insertedID bson.ObjectID
	findDocs   []eventDocument
}

func (c *fakeCollection) InsertOne(context.Context, any, ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	return &mongodriver.InsertOneResult{InsertedID: c.insertedID}, nil
}

func (c *fakeCollection) Find(_ context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursorIter, error) {
	f, ok := filter.(bson.M)
	if !ok {
		return &fakeCursor{}, nil
	}

	runID, _ := f["run_id"].(string)
	var after bson.ObjectID
	if id, ok := f["_id"].(bson.M); ok {
		if gt, ok := id["$gt"].(bson.ObjectID); ok {
			after = gt
		}
	}

	filtered := make([]eventDocument, 0, len(c.findDocs))
	for _, doc := range c.findDocs {
		if doc.RunID != runID {
			continue
		}
		if !after.IsZero() && bytes.Compare(doc.ID[:], after[:]) <= 0 {
			continue
		}
		filtered = append(filtered, doc)
	}

	merged := options.MergeFindOptions(opts...)
	var limit int64
	if merged.Limit != nil {
		limit = *merged.Limit
	}
	if limit > 0 && int64(len(filtered)) > limit {
		filtered = filtered[:limit]
	}

	return &fakeCursor{docs: filtered}, nil
}

func (c *fakeCollection) Indexes() indexView {
	return fakeIndexView{}
}

type fakeIndexView struct{}

func (fakeIndexView) CreateOne(context.Context, mongodriver.IndexModel, ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return "", nil
}

type fakeCursor struct {
	docs []eventDocument
	pos  int
}

func (c *fakeCursor) Next(context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(val any) error {
	if c.pos == 0 || c.pos > len(c.docs) {
		return nil
	}
	p, ok := val.(*eventDocument)
	if !ok {
		return nil
	}
	*p = c.docs[c.pos-1]
	return nil
}

func (c *fakeCursor) Err() error { return nil }

func (c *fakeCursor) Close(context.Context) error { return nil }
