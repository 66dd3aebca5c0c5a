package mongostore

import (
	"context"
	"time"

	"hdnotes-server/internal/domain"
	"hdnotes-server/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type noteRecord struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type NoteRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

var _ repository.NoteRepository = (*NoteRepository)(nil)

func NewNoteRepository(db *mongo.Database, timeout time.Duration) *NoteRepository {
	return &NoteRepository{
		coll:    db.Collection(notesCollection),
		timeout: timeout,
	}
}

func (r *NoteRepository) Create(ctx context.Context, note *domain.Note) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now

	_, err := r.coll.InsertOne(ctx, toNoteRecord(note))
	return mapError(err, "failed to create note")
}

func (r *NoteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rec noteRecord
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		return nil, mapError(err, "failed to find note")
	}
	return fromNoteRecord(&rec), nil
}

func (r *NoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Note, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, mapError(err, "failed to list notes")
	}

	var recs []noteRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, mapError(err, "failed to decode notes")
	}

	notes := make([]*domain.Note, 0, len(recs))
	for i := range recs {
		notes = append(notes, fromNoteRecord(&recs[i]))
	}
	return notes, nil
}

func (r *NoteRepository) Save(ctx context.Context, note *domain.Note) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	repository.Touch(&note.UpdatedAt)
	update := bson.M{"$set": bson.M{
		"title":      note.Title,
		"content":    note.Content,
		"updated_at": note.UpdatedAt,
	}}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": note.ID}, update)
	if err != nil {
		return mapError(err, "failed to update note")
	}
	if res.MatchedCount == 0 {
		return mapError(mongo.ErrNoDocuments, "note "+note.ID)
	}
	return nil
}

func (r *NoteRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return mapError(err, "failed to delete note")
	}
	if res.DeletedCount == 0 {
		return mapError(mongo.ErrNoDocuments, "note "+id)
	}
	return nil
}

func toNoteRecord(n *domain.Note) *noteRecord {
	return &noteRecord{
		ID:        n.ID,
		OwnerID:   n.OwnerID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func fromNoteRecord(rec *noteRecord) *domain.Note {
	return &domain.Note{
		ID:        rec.ID,
		OwnerID:   rec.OwnerID,
		Title:     rec.Title,
		Content:   rec.Content,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
