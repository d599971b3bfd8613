// Package audit appends domain events (purchases, quiz submissions) to an
// append-only log table. Recording is best-effort: a failed append is logged
// and never fails the request that produced the event.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

const (
	EventPurchaseCreated = "PurchaseCreated"
	EventQuizSubmitted   = "QuizSubmitted"
)

type Recorder struct{ db *sql.DB }

func NewRecorder(db *sql.DB) *Recorder { return &Recorder{db: db} }

// Append writes one event row. key is the natural key of the subject
// (purchase id, submission id).
func (r *Recorder) Append(ctx context.Context, typ, key string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("audit: marshal %s %s: %v", typ, key, err)
		return
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		typ, key, string(data), time.Now().Unix())
	if err != nil {
		log.Printf("audit: append %s %s: %v", typ, key, err)
	}
}
