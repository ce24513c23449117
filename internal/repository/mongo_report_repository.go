package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"lapor-service/internal/apperror"
	"lapor-service/internal/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const reportsCollection = "reports"

type historyDocument struct {
	Status        string    `bson:"status"`
	ActorID       string    `bson:"actor_id"`
	Note          string    `bson:"note,omitempty"`
	AttachmentRef string    `bson:"attachment_ref,omitempty"`
	Timestamp     time.Time `bson:"timestamp"`
}

type reportDocument struct {
	ID          string            `bson:"_id"`
	ReporterID  string            `bson:"reporter_id"`
	Description string            `bson:"description"`
	PhotoRef    string            `bson:"photo_ref"`
	Location    model.Location    `bson:"location"`
	Address     string            `bson:"address"`
	Status      string            `bson:"status"`
	History     []historyDocument `bson:"history"`
	Version     int64             `bson:"version"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

func toDocument(r *model.Report) reportDocument {
	doc := reportDocument{
		ID:          r.ID.String(),
		ReporterID:  r.ReporterID.String(),
		Description: r.Description,
		PhotoRef:    r.PhotoRef,
		Location:    r.Location,
		Address:     r.Address,
		Status:      string(r.Status),
		History:     make([]historyDocument, 0, len(r.History)),
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, entry := range r.History {
		doc.History = append(doc.History, historyDocument{
			Status:        string(entry.Status),
			ActorID:       entry.ActorID.String(),
			Note:          entry.Note,
			AttachmentRef: entry.AttachmentRef,
			Timestamp:     entry.Timestamp,
		})
	}
	return doc
}

func (d reportDocument) toReport() (*model.Report, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode report id %q: %w", d.ID, err)
	}
	reporterID, err := uuid.Parse(d.ReporterID)
	if err != nil {
		return nil, fmt.Errorf("decode reporter id of %s: %w", d.ID, err)
	}

	report := &model.Report{
		ID:          id,
		ReporterID:  reporterID,
		Description: d.Description,
		PhotoRef:    d.PhotoRef,
		Location:    d.Location,
		Address:     d.Address,
		Status:      model.ReportStatus(d.Status),
		History:     make([]model.HistoryEntry, 0, len(d.History)),
		Version:     d.Version,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	for _, h := range d.History {
		actorID, err := uuid.Parse(h.ActorID)
		if err != nil {
			return nil, fmt.Errorf("decode history actor of %s: %w", d.ID, err)
		}
		report.History = append(report.History, model.HistoryEntry{
			Status:        model.ReportStatus(h.Status),
			ActorID:       actorID,
			Note:          h.Note,
			AttachmentRef: h.AttachmentRef,
			Timestamp:     h.Timestamp.UTC(),
		})
	}
	return report, nil
}

// MongoReportRepository keeps one document per report with the history embedded,
// so a single ReplaceOne updates status and ledger together.
type MongoReportRepository struct {
	client *mongo.Client
	col    *mongo.Collection
}

func NewMongoReportRepository(client *mongo.Client, database string) *MongoReportRepository {
	return &MongoReportRepository{
		client: client,
		col:    client.Database(database).Collection(reportsCollection),
	}
}

// OpenMongo connects and pings within a bounded timeout.
func OpenMongo(ctx context.Context, uri, database string) (*MongoReportRepository, error) {
	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(dctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(dctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return NewMongoReportRepository(client, database), nil
}

// Migrate creates the listing indexes. Existing indexes with the same keys are left alone.
func (r *MongoReportRepository) Migrate(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "reporter_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create report indexes: %w", err)
	}
	return nil
}

func (r *MongoReportRepository) Create(ctx context.Context, report *model.Report) error {
	_, err := r.col.InsertOne(ctx, toDocument(report))
	if mongo.IsDuplicateKeyError(err) {
		return apperror.Conflict("report " + report.ID.String() + " already exists")
	}
	return apperror.Storage("create report", err)
}

func (r *MongoReportRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Report, error) {
	var doc reportDocument
	err := r.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("report", err)
		}
		return nil, apperror.Storage("find report", err)
	}
	report, err := doc.toReport()
	if err != nil {
		return nil, apperror.Storage("find report", err)
	}
	return report, nil
}

func (r *MongoReportRepository) Replace(ctx context.Context, report *model.Report, expectedVersion int64) error {
	filter := bson.M{"_id": report.ID.String(), "version": expectedVersion}
	result, err := r.col.ReplaceOne(ctx, filter, toDocument(report))
	if err != nil {
		return apperror.Storage("update report", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	n, err := r.col.CountDocuments(ctx, bson.M{"_id": report.ID.String()}, options.Count().SetLimit(1))
	if err != nil {
		return apperror.Storage("update report", err)
	}
	if n == 0 {
		return apperror.NotFound("report", nil)
	}
	return apperror.Conflict("report was modified concurrently")
}

func (r *MongoReportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.col.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return apperror.Storage("delete report", err)
	}
	if result.DeletedCount == 0 {
		return apperror.NotFound("report", nil)
	}
	return nil
}

func (r *MongoReportRepository) Find(ctx context.Context, filter ReportFilter) ([]model.Report, int, error) {
	query := buildFilter(filter)

	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, apperror.Storage("count reports", err)
	}

	opts := options.Find().SetSort(sortSpec(filter.SortField, filter.SortDesc))
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, apperror.Storage("list reports", err)
	}
	defer cur.Close(ctx)

	reports := []model.Report{}
	for cur.Next(ctx) {
		var doc reportDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, apperror.Storage("list reports", err)
		}
		report, err := doc.toReport()
		if err != nil {
			return nil, 0, apperror.Storage("list reports", err)
		}
		reports = append(reports, *report)
	}
	if err := cur.Err(); err != nil {
		return nil, 0, apperror.Storage("list reports", err)
	}
	return reports, int(total), nil
}

func (r *MongoReportRepository) CountByStatus(ctx context.Context) (map[model.ReportStatus]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperror.Storage("count reports", err)
	}
	defer cur.Close(ctx)

	counts := zeroCounts()
	for cur.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			Count  int    `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, apperror.Storage("count reports", err)
		}
		counts[model.ReportStatus(row.Status)] = row.Count
	}
	if err := cur.Err(); err != nil {
		return nil, apperror.Storage("count reports", err)
	}
	return counts, nil
}

func (r *MongoReportRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func (r *MongoReportRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func buildFilter(filter ReportFilter) bson.M {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = string(*filter.Status)
	}
	if filter.ReporterID != nil {
		query["reporter_id"] = filter.ReporterID.String()
	}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = []bson.M{
			{"description": pattern},
			{"address": pattern},
		}
	}
	return query
}

func sortSpec(field SortField, desc bool) bson.D {
	key := "created_at"
	switch field {
	case SortUpdatedAt:
		key = "updated_at"
	case SortStatus:
		key = "status"
	}
	dir := 1
	if desc {
		dir = -1
	}
	return bson.D{{Key: key, Value: dir}, {Key: "_id", Value: 1}}
}
