// Package indexer projects published match notifications into SQL tables so
// dashboards can query matches without going through the router.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"matchpool/core/events"
	"matchpool/core/types"
	"matchpool/native/escrow"
)

const cursorName = "escrow"

// ErrSequenceGap reports a notification that arrived ahead of the cursor.
// The records in between must be replayed from the log before it applies.
var ErrSequenceGap = errors.New("indexer: sequence gap")

// Indexer applies notifications in sequence order. Applying the same record
// twice is a no-op.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New migrates the schema and returns an indexer writing to db.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: logger.With(slog.String("component", "indexer"))}, nil
}

// Next returns the sequence of the next notification the indexer expects.
func (ix *Indexer) Next() (uint64, error) {
	var cursor Cursor
	err := ix.db.First(&cursor, "name = ?", cursorName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cursor.Sequence, nil
}

// Apply projects a single notification.
func (ix *Indexer) Apply(evt *types.Event) error {
	if evt == nil {
		return nil
	}
	return ix.db.Transaction(func(tx *gorm.DB) error {
		var cursor Cursor
		err := tx.First(&cursor, "name = ?", cursorName).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cursor = Cursor{Name: cursorName}
		case err != nil:
			return err
		}
		if evt.Sequence < cursor.Sequence {
			return nil
		}
		if evt.Sequence > cursor.Sequence {
			return fmt.Errorf("%w: expected #%d, got #%d", ErrSequenceGap, cursor.Sequence, evt.Sequence)
		}
		if err := apply(tx, evt); err != nil {
			return fmt.Errorf("indexer: apply %s #%d: %w", evt.Type, evt.Sequence, err)
		}
		cursor.Sequence = evt.Sequence + 1
		return tx.Save(&cursor).Error
	})
}

// Backfill applies every record retained by log from the indexer's cursor on.
func (ix *Indexer) Backfill(log *events.Log) error {
	next, err := ix.Next()
	if err != nil {
		return err
	}
	for _, evt := range log.Since(next, 0) {
		if err := ix.Apply(evt); err != nil {
			return err
		}
	}
	return nil
}

// Run applies records from feed until ctx is cancelled or feed is closed.
// Records the feed skipped are replayed from log. Run fails once log no
// longer retains a record the projection still needs.
func (ix *Indexer) Run(ctx context.Context, log *events.Log, feed <-chan *types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-feed:
			if !ok {
				return nil
			}
			err := ix.Apply(evt)
			if errors.Is(err, ErrSequenceGap) {
				ix.logger.Warn("notification feed skipped records, replaying from log", slog.String("error", err.Error()))
				if err := ix.Backfill(log); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				ix.logger.Error("apply notification failed", slog.String("error", err.Error()))
			}
		}
	}
}

func apply(tx *gorm.DB, evt *types.Event) error {
	attrs := evt.Attributes
	switch evt.Type {
	case escrow.EventTypeMatchCreated:
		id, err := parseMatchID(attrs)
		if err != nil {
			return err
		}
		maxParticipants, _ := strconv.ParseUint(attrs["maxParticipants"], 10, 64)
		createdAt, _ := strconv.ParseUint(attrs["createdAt"], 10, 64)
		row := Match{
			MatchID:         id,
			Controller:      attrs["controller"],
			StakeAmount:     attrs["stakeAmount"],
			MaxParticipants: maxParticipants,
			Participants:    attrs["creator"],
			OpenedAt:        createdAt,
		}
		fillCommon(&row, evt)
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	case escrow.EventTypeMatchJoined, escrow.EventTypeMatchForfeited, escrow.EventTypeLoserMarked:
		return updateMatch(tx, evt, func(row *Match) {
			participant := attrs["participant"]
			switch evt.Type {
			case escrow.EventTypeMatchJoined:
				row.Participants = appendList(row.Participants, participant)
			case escrow.EventTypeMatchForfeited:
				row.Forfeited = appendList(row.Forfeited, participant)
			default:
				row.Losers = appendList(row.Losers, participant)
			}
		})
	case escrow.EventTypeMatchReady:
		return updateMatch(tx, evt, func(*Match) {})
	case escrow.EventTypeMatchResolved:
		return updateMatch(tx, evt, func(row *Match) {
			row.Winners = attrs["winners"]
			row.Losers = attrs["losers"]
			row.Forfeited = attrs["forfeited"]
			row.Policy = attrs["policy"]
			row.TotalStake = attrs["totalStake"]
			row.ControllerFee = attrs["controllerFee"]
			row.PlatformFee = attrs["platformFee"]
			row.PrizePool = attrs["prizePool"]
		})
	case escrow.EventTypeMatchPayout:
		id, err := parseMatchID(attrs)
		if err != nil {
			return err
		}
		payout := Payout{
			ID:        uuid.New(),
			MatchID:   id,
			Recipient: attrs["recipient"],
			Amount:    attrs["amount"],
			Kind:      attrs["kind"],
			Sequence:  evt.Sequence,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&payout).Error
	default:
		return nil
	}
}

func updateMatch(tx *gorm.DB, evt *types.Event, mutate func(*Match)) error {
	id, err := parseMatchID(evt.Attributes)
	if err != nil {
		return err
	}
	var row Match
	if err := tx.First(&row, "match_id = ?", id).Error; err != nil {
		return fmt.Errorf("match %d: %w", id, err)
	}
	mutate(&row)
	fillCommon(&row, evt)
	return tx.Model(&Match{}).Where("match_id = ?", id).Select("*").Omit("match_id").Updates(&row).Error
}

func fillCommon(row *Match, evt *types.Event) {
	if phase := evt.Attributes["phase"]; phase != "" {
		row.Phase = phase
	}
	if active, err := strconv.ParseUint(evt.Attributes["activeCount"], 10, 64); err == nil {
		row.ActiveCount = active
	}
	row.LastSequence = evt.Sequence
}

func parseMatchID(attrs map[string]string) (uint64, error) {
	id, err := strconv.ParseUint(attrs["matchId"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid matchId %q", attrs["matchId"])
	}
	return id, nil
}

func appendList(list, item string) string {
	if item == "" {
		return list
	}
	if list == "" {
		return item
	}
	return list + "," + item
}

// Match returns the projected match.
func (ix *Indexer) Match(id uint64) (Match, error) {
	var row Match
	err := ix.db.First(&row, "match_id = ?", id).Error
	return row, err
}

// MatchesByPhase lists projected matches in the given phase ordered by id.
func (ix *Indexer) MatchesByPhase(phase string, limit int) ([]Match, error) {
	if limit <= 0 || limit > escrow.MaxPageLimit {
		limit = escrow.DefaultPageLimit
	}
	var rows []Match
	err := ix.db.Where("phase = ?", strings.ToLower(phase)).Order("match_id").Limit(limit).Find(&rows).Error
	return rows, err
}

// PayoutsFor lists every payout received by recipient in sequence order.
func (ix *Indexer) PayoutsFor(recipient types.Identity) ([]Payout, error) {
	var rows []Payout
	err := ix.db.Where("recipient = ?", recipient.String()).Order("sequence").Find(&rows).Error
	return rows, err
}
