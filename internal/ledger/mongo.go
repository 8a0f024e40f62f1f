package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bidding-marketplace/internal/biddingerrors"
	"bidding-marketplace/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	versionField = "_version"
	updatedField = "_updated"

	watchBackoffMin = 500 * time.Millisecond
	watchBackoffMax = 30 * time.Second
)

// MongoStore keeps each ledger collection in its own MongoDB collection.
// The document id is the Mongo _id; _version and _updated are bookkeeping.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore wraps an open database handle
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// ConnectMongo dials uri, checks the connection and returns a store on database
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Client, *MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ledger: ping mongo: %w", err)
	}
	return client, NewMongoStore(client.Database(database)), nil
}

// collectionName maps a ledger collection path onto a Mongo collection name
func collectionName(collection string) string {
	return strings.ReplaceAll(collection, "/", ".")
}

func (s *MongoStore) locate(path string) (*mongo.Collection, string, error) {
	if err := ValidatePath(path); err != nil {
		return nil, "", err
	}
	collection, id := Split(path)
	if collection == "" {
		return nil, "", fmt.Errorf("ledger: %w - %q has no collection", biddingerrors.ErrMalformedDocument, path)
	}
	return s.db.Collection(collectionName(collection)), id, nil
}

// Get returns the document stored at path
func (s *MongoStore) Get(ctx context.Context, path string) (Document, error) {
	coll, id, err := s.locate(path)
	if err != nil {
		return Document{}, err
	}

	var raw bson.M
	if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, fmt.Errorf("get %s: %w", path, biddingerrors.ErrDocumentNotFound)
		}
		return Document{}, fmt.Errorf("get %s: %w", path, err)
	}
	collection, _ := Split(path)
	return toDocument(collection, raw)
}

// Put creates or replaces the document at path in a single round trip
func (s *MongoStore) Put(ctx context.Context, path string, fields map[string]any) (Document, error) {
	coll, id, err := s.locate(path)
	if err != nil {
		return Document{}, err
	}

	replacement := bson.M{
		"_id":        id,
		versionField: bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$" + versionField, 0}}, 1}},
		updatedField: "$$NOW",
	}
	for k, v := range fields {
		if isReserved(k) {
			continue
		}
		replacement[k] = bson.M{"$literal": v}
	}
	pipeline := mongo.Pipeline{{{Key: "$replaceWith", Value: replacement}}}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var raw bson.M
	if err := coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&raw); err != nil {
		return Document{}, fmt.Errorf("put %s: %w", path, err)
	}
	collection, _ := Split(path)
	return toDocument(collection, raw)
}

// Update merges fields into an existing document
func (s *MongoStore) Update(ctx context.Context, path string, fields map[string]any) (Document, error) {
	return s.update(ctx, path, -1, fields)
}

// UpdateIf merges fields when the stored version equals expectedVersion
func (s *MongoStore) UpdateIf(ctx context.Context, path string, expectedVersion int64, fields map[string]any) (Document, error) {
	return s.update(ctx, path, expectedVersion, fields)
}

func (s *MongoStore) update(ctx context.Context, path string, expectedVersion int64, fields map[string]any) (Document, error) {
	coll, id, err := s.locate(path)
	if err != nil {
		return Document{}, err
	}

	filter := bson.M{"_id": id}
	if expectedVersion >= 0 {
		filter[versionField] = expectedVersion
	}

	set := bson.M{}
	for k, v := range fields {
		if !isReserved(k) {
			set[k] = v
		}
	}
	update := bson.M{
		"$inc":         bson.M{versionField: 1},
		"$currentDate": bson.M{updatedField: true},
	}
	if len(set) > 0 {
		update["$set"] = set
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var raw bson.M
	err = coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, countErr := coll.CountDocuments(ctx, bson.M{"_id": id})
		if countErr != nil {
			return Document{}, fmt.Errorf("update %s: %w", path, countErr)
		}
		if n == 0 {
			return Document{}, fmt.Errorf("update %s: %w", path, biddingerrors.ErrDocumentNotFound)
		}
		return Document{}, fmt.Errorf("update %s: expected version %d: %w", path, expectedVersion, biddingerrors.ErrVersionConflict)
	}
	if err != nil {
		return Document{}, fmt.Errorf("update %s: %w", path, err)
	}
	collection, _ := Split(path)
	return toDocument(collection, raw)
}

// Delete removes the document at path
func (s *MongoStore) Delete(ctx context.Context, path string) error {
	coll, id, err := s.locate(path)
	if err != nil {
		return err
	}
	if _, err := coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// List returns every document of collection ordered by id
func (s *MongoStore) List(ctx context.Context, collection string) ([]Document, error) {
	return s.find(ctx, collection, bson.D{})
}

// Query returns the documents of collection whose field equals value
func (s *MongoStore) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	if isReserved(field) {
		return nil, fmt.Errorf("query %s: %w - reserved field %q", collection, biddingerrors.ErrMalformedDocument, field)
	}
	return s.find(ctx, collection, bson.D{{Key: field, Value: value}})
}

func (s *MongoStore) find(ctx context.Context, collection string, filter bson.D) ([]Document, error) {
	coll := s.db.Collection(collectionName(collection))

	cur, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := toDocument(collection, raw)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// changeEvent is the subset of a change stream event the store reads
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             bson.M `bson:"fullDocument"`
	FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
}

// SubscribeCollection opens a change stream on collection. Stream failures are
// reported to onError and the stream is re-opened from the last resume token
// with exponential backoff until the subscription ends.
func (s *MongoStore) SubscribeCollection(ctx context.Context, collection string, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error) {
	coll := s.db.Collection(collectionName(collection))
	subCtx, cancel := context.WithCancel(ctx)

	// Open the stream before listing so nothing committed in between is lost.
	stream, err := coll.Watch(subCtx, mongo.Pipeline{}, watchOptions(nil))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	initial, err := s.List(subCtx, collection)
	if err != nil {
		_ = stream.Close(context.Background())
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	w := &watcher{
		coll:       coll,
		collection: collection,
		current:    make(map[string]Document, len(initial)),
		onSnapshot: onSnapshot,
		onError:    onError,
	}
	for _, doc := range initial {
		w.current[doc.Path] = doc
	}

	go w.run(subCtx, stream, initial)

	return func() { cancel() }, nil
}

func watchOptions(resumeAfter bson.Raw) *options.ChangeStreamOptions {
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if resumeAfter != nil {
		opts.SetResumeAfter(resumeAfter)
	}
	return opts
}

type watcher struct {
	coll       *mongo.Collection
	collection string
	current    map[string]Document
	onSnapshot func(Snapshot)
	onError    func(error)
	resume     bson.Raw
}

func (w *watcher) run(ctx context.Context, stream *mongo.ChangeStream, initial []Document) {
	changes := make([]Change, 0, len(initial))
	for i := range initial {
		changes = append(changes, Change{Path: initial[i].Path, After: ptr(initial[i])})
	}
	w.onSnapshot(Snapshot{Collection: w.collection, Documents: initial, Changes: changes, Initial: true})

	backoff := watchBackoffMin
	for {
		if stream == nil {
			var err error
			stream, err = w.coll.Watch(ctx, mongo.Pipeline{}, watchOptions(w.resume))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.report(fmt.Errorf("reopen change stream on %s: %w", w.collection, err))
				if !sleep(ctx, backoff) {
					return
				}
				backoff = nextBackoff(backoff, watchBackoffMax)
				continue
			}
		}

		for stream.Next(ctx) {
			backoff = watchBackoffMin
			w.resume = stream.ResumeToken()

			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				w.report(fmt.Errorf("decode change on %s: %w", w.collection, err))
				continue
			}
			if ev.OperationType == "invalidate" || ev.OperationType == "drop" {
				w.resume = nil
				break
			}
			if change, ok := w.apply(ev); ok {
				w.onSnapshot(Snapshot{Collection: w.collection, Documents: w.documents(), Changes: []Change{change}})
			}
		}

		streamErr := stream.Err()
		_ = stream.Close(context.Background())
		stream = nil
		if ctx.Err() != nil {
			return
		}
		if streamErr != nil {
			w.report(fmt.Errorf("change stream on %s: %w", w.collection, streamErr))
		}
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, watchBackoffMax)
	}
}

// apply folds a change event into the watcher's view and returns the change
func (w *watcher) apply(ev changeEvent) (Change, bool) {
	path := Join(w.collection, ev.DocumentKey.ID)
	var before *Document
	if ev.FullDocumentBeforeChange != nil {
		if doc, err := toDocument(w.collection, ev.FullDocumentBeforeChange); err == nil {
			before = &doc
		}
	} else if doc, ok := w.current[path]; ok {
		before = ptr(doc)
	}

	switch ev.OperationType {
	case "insert", "update", "replace":
		if ev.FullDocument == nil {
			return Change{}, false
		}
		after, err := toDocument(w.collection, ev.FullDocument)
		if err != nil {
			w.report(err)
			return Change{}, false
		}
		w.current[path] = after
		return Change{Path: path, Before: before, After: ptr(after)}, true
	case "delete":
		delete(w.current, path)
		if before == nil {
			return Change{}, false
		}
		return Change{Path: path, Before: before}, true
	default:
		return Change{}, false
	}
}

func (w *watcher) documents() []Document {
	docs := make([]Document, 0, len(w.current))
	for _, doc := range w.current {
		docs = append(docs, doc.clone())
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs
}

func (w *watcher) report(err error) {
	if w.onError != nil {
		w.onError(err)
		return
	}
	utils.Warn("ledger: subscription error", map[string]any{"collection": w.collection, "error": err.Error()})
}

func toDocument(collection string, raw bson.M) (Document, error) {
	id, ok := raw["_id"].(string)
	if !ok || id == "" {
		return Document{}, fmt.Errorf("ledger: %w - missing string _id in %s", biddingerrors.ErrMalformedDocument, collection)
	}

	doc := Document{Path: Join(collection, id), Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case "_id":
		case versionField:
			doc.Version = asInt64(v)
		case updatedField:
			if t, ok := normalizeValue(v).(time.Time); ok {
				doc.UpdateTime = t
			}
		default:
			doc.Fields[k] = normalizeValue(v)
		}
	}
	return doc, nil
}

// normalizeValue converts driver-specific types to the scalar set documents use
func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Null:
		return nil
	case int32:
		return int64(t)
	case int:
		return int64(t)
	default:
		return v
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func isReserved(field string) bool {
	return field == "_id" || field == versionField || field == updatedField
}

func nextBackoff(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
