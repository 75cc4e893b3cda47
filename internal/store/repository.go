package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trading-fusion-engine/internal/signal"
	"trading-fusion-engine/internal/zone"
)

// Repository handles audit persistence for decisions and archived zones.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// DecisionRecord is one persisted decision row.
type DecisionRecord struct {
	ID                int64                    `json:"id"`
	EvaluationID      string                   `json:"evaluation_id"`
	Symbol            string                   `json:"symbol"`
	OverallConfidence float64                  `json:"overall_confidence"`
	WeightedScore     float64                  `json:"weighted_score"`
	Dominant          string                   `json:"dominant"`
	BullishShare      float64                  `json:"bullish_share"`
	BearishShare      float64                  `json:"bearish_share"`
	NeutralShare      float64                  `json:"neutral_share"`
	Conflict          bool                     `json:"conflict"`
	IsValid           bool                     `json:"is_valid"`
	ValidationMessage string                   `json:"validation_message,omitempty"`
	ActiveComponents  int                      `json:"active_components"`
	Weights           map[string]float64       `json:"weights"`
	Components        []signal.ComponentSignal `json:"components"`
	DecidedAt         time.Time                `json:"decided_at"`
}

// SaveDecision persists one fused decision. Components and weights are stored
// as JSONB so the full evaluation context survives for audit.
func (r *Repository) SaveDecision(ctx context.Context, d *signal.FusionDecision) error {
	weightsJSON, err := json.Marshal(d.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	componentsJSON, err := json.Marshal(d.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}

	query := `
		INSERT INTO decisions (
			evaluation_id, symbol, overall_confidence, weighted_score, dominant,
			bullish_share, bearish_share, neutral_share, conflict,
			is_valid, validation_message, active_components, weights, components, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (evaluation_id) DO NOTHING`

	_, err = r.db.Pool.Exec(ctx, query,
		d.EvaluationID, d.Symbol, d.OverallConfidence, d.WeightedScore, d.Dominant.String(),
		d.BullishShare, d.BearishShare, d.NeutralShare, d.Conflict,
		d.IsValid, d.ValidationMessage, d.ActiveComponents, weightsJSON, componentsJSON, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// RecentDecisions returns the latest decisions for a symbol, newest first.
func (r *Repository) RecentDecisions(ctx context.Context, symbol string, limit int) ([]DecisionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, evaluation_id, symbol, overall_confidence, weighted_score, dominant,
			bullish_share, bearish_share, neutral_share, conflict,
			is_valid, COALESCE(validation_message, ''), active_components,
			COALESCE(weights, '{}'), COALESCE(components, '[]'), decided_at
		FROM decisions
		WHERE symbol = $1
		ORDER BY decided_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var weightsJSON, componentsJSON []byte
		if err := rows.Scan(
			&rec.ID, &rec.EvaluationID, &rec.Symbol, &rec.OverallConfidence, &rec.WeightedScore, &rec.Dominant,
			&rec.BullishShare, &rec.BearishShare, &rec.NeutralShare, &rec.Conflict,
			&rec.IsValid, &rec.ValidationMessage, &rec.ActiveComponents,
			&weightsJSON, &componentsJSON, &rec.DecidedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if err := json.Unmarshal(weightsJSON, &rec.Weights); err != nil {
			return nil, fmt.Errorf("unmarshal weights: %w", err)
		}
		if err := json.Unmarshal(componentsJSON, &rec.Components); err != nil {
			return nil, fmt.Errorf("unmarshal components: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveArchivedZones persists retired zones. Re-inserting an already persisted
// zone is a no-op, so the caller can flush the full archive each maintenance
// cycle.
func (r *Repository) SaveArchivedZones(ctx context.Context, symbol string, zones []zone.Zone) error {
	query := `
		INSERT INTO archived_zones (
			zone_id, symbol, zone_type, level, strength, relevance,
			touch_count, failed_tests, source_timeframe, formed_at, archived_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (zone_id) DO NOTHING`

	for _, z := range zones {
		if !z.Archived {
			continue
		}
		_, err := r.db.Pool.Exec(ctx, query,
			z.ID, symbol, z.Type.String(), z.Level, z.Strength, z.Relevance,
			z.TouchCount, z.FailedTests, string(z.SourceTimeframe), z.CreatedAt, z.ArchivedAt,
		)
		if err != nil {
			return fmt.Errorf("insert archived zone %s: %w", z.ID, err)
		}
	}
	return nil
}

// ArchivedZoneRecord is one persisted retired zone.
type ArchivedZoneRecord struct {
	ZoneID          string    `json:"zone_id"`
	Symbol          string    `json:"symbol"`
	ZoneType        string    `json:"zone_type"`
	Level           float64   `json:"level"`
	Strength        float64   `json:"strength"`
	Relevance       float64   `json:"relevance"`
	TouchCount      int       `json:"touch_count"`
	FailedTests     int       `json:"failed_tests"`
	SourceTimeframe string    `json:"source_timeframe"`
	FormedAt        time.Time `json:"formed_at"`
	ArchivedAt      time.Time `json:"archived_at"`
}

// ArchivedZones returns retired zones for a symbol, most recently retired
// first.
func (r *Repository) ArchivedZones(ctx context.Context, symbol string, limit int) ([]ArchivedZoneRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT zone_id, symbol, zone_type, level, strength, relevance,
			touch_count, failed_tests, source_timeframe, formed_at, archived_at
		FROM archived_zones
		WHERE symbol = $1
		ORDER BY archived_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query archived zones: %w", err)
	}
	defer rows.Close()

	var records []ArchivedZoneRecord
	for rows.Next() {
		var rec ArchivedZoneRecord
		if err := rows.Scan(
			&rec.ZoneID, &rec.Symbol, &rec.ZoneType, &rec.Level, &rec.Strength, &rec.Relevance,
			&rec.TouchCount, &rec.FailedTests, &rec.SourceTimeframe, &rec.FormedAt, &rec.ArchivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan archived zone: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
