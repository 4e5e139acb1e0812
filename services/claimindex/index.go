package claimindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"merkledrop/core/events"
	"merkledrop/core/types"
	"merkledrop/native/distributor"
)

var (
	ErrUnsupportedDriver = errors.New("claimindex: unsupported driver")
	ErrNotFound          = errors.New("claimindex: not found")
)

// Open connects to the index database and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("claimindex: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("claimindex: migrate: %w", err)
	}
	return db, nil
}

// Index persists committed distributor events and answers audit queries.
type Index struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// New wraps an already migrated database.
func New(db *gorm.DB, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{db: db, logger: logger.With("component", "claimindex"), now: time.Now}
}

var _ events.Emitter = (*Index)(nil)

// Emit implements events.Emitter. Events arrive after the state commit, so a
// failure here never affects the operation; it is logged and dropped.
func (i *Index) Emit(evt events.Event) {
	if i == nil || evt == nil || evt.Event() == nil {
		return
	}
	if err := i.Record(context.Background(), evt.Event()); err != nil {
		i.logger.Error("index event", "type", evt.EventType(), "error", err)
	}
}

// Record stores evt and folds it into the distributor and claim aggregates.
func (i *Index) Record(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	amount := parseUint(evt.Attr("amount"))
	occurred := i.now().UTC()
	if ts := evt.Attr("timestamp"); ts != "" {
		if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
			occurred = time.Unix(unix, 0).UTC()
		}
	}
	row := Event{
		ID:            uuid.New(),
		DistributorID: evt.Attr("distributor"),
		Type:          evt.Type,
		Claimant:      evt.Attr("claimant"),
		Amount:        amount,
		Attributes:    string(attrs),
		OccurredAt:    occurred,
	}
	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return apply(tx, evt, row)
	})
}

func apply(tx *gorm.DB, evt *types.Event, row Event) error {
	id := row.DistributorID
	switch evt.Type {
	case distributor.EventTypeDistributorCreated:
		record := Distributor{
			ID:               id,
			Version:          parseUint(evt.Attr("version")),
			Root:             evt.Attr("root"),
			Hasher:           evt.Attr("hasher"),
			Mint:             evt.Attr("mint"),
			Vault:            evt.Attr("vault"),
			Admin:            evt.Attr("admin"),
			ClawbackReceiver: evt.Attr("clawbackReceiver"),
			MaxTotalClaim:    parseUint(evt.Attr("maxTotalClaim")),
			MaxNumNodes:      parseUint(evt.Attr("maxNumNodes")),
			StartTs:          parseInt(evt.Attr("startTs")),
			EndTs:            parseInt(evt.Attr("endTs")),
			ClawbackStartTs:  parseInt(evt.Attr("clawbackStartTs")),
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
	case distributor.EventTypeNewClaim:
		claim := Claim{
			DistributorID:  id,
			Claimant:       row.Claimant,
			UnlockedAmount: parseUint(evt.Attr("unlocked")),
			LockedAmount:   parseUint(evt.Attr("locked")),
			FirstClaimAt:   row.OccurredAt,
			LastClaimAt:    row.OccurredAt,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&claim).Error
	case distributor.EventTypeClaimed:
		return tx.Model(&Claim{}).
			Where("distributor_id = ? AND claimant = ?", id, row.Claimant).
			Updates(map[string]any{
				"withdrawn":     parseUint(evt.Attr("withdrawn")),
				"last_claim_at": row.OccurredAt,
			}).Error
	case distributor.EventTypeClawback:
		return tx.Model(&Distributor{}).Where("id = ?", id).
			Updates(map[string]any{"clawed_back": true, "clawback_amount": row.Amount}).Error
	case distributor.EventTypeAdminUpdated:
		return tx.Model(&Distributor{}).Where("id = ?", id).Update("admin", evt.Attr("admin")).Error
	case distributor.EventTypeClawbackReceiverUpdated:
		return tx.Model(&Distributor{}).Where("id = ?", id).Update("clawback_receiver", evt.Attr("receiver")).Error
	case distributor.EventTypeFunded:
		return tx.Model(&Distributor{}).Where("id = ?", id).
			Update("funded", gorm.Expr("funded + ?", row.Amount)).Error
	}
	return nil
}

// Distributor returns the indexed distributor by hex id.
func (i *Index) Distributor(ctx context.Context, id string) (*Distributor, error) {
	var out Distributor
	err := i.db.WithContext(ctx).First(&out, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Distributors lists indexed distributors, newest first.
func (i *Index) Distributors(ctx context.Context) ([]Distributor, error) {
	var out []Distributor
	err := i.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	return out, err
}

// ClaimsByClaimant lists a claimant's aggregates across every distributor.
func (i *Index) ClaimsByClaimant(ctx context.Context, claimant string) ([]Claim, error) {
	var out []Claim
	err := i.db.WithContext(ctx).
		Where("claimant = ?", claimant).
		Order("first_claim_at ASC").
		Find(&out).Error
	return out, err
}

// Claim returns one aggregate.
func (i *Index) Claim(ctx context.Context, distributorID, claimant string) (*Claim, error) {
	var out Claim
	err := i.db.WithContext(ctx).
		First(&out, "distributor_id = ? AND claimant = ?", distributorID, claimant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Events returns the audit log of a distributor in occurrence order,
// optionally filtered by type.
func (i *Index) Events(ctx context.Context, distributorID, eventType string, limit int) ([]Event, error) {
	q := i.db.WithContext(ctx).Where("distributor_id = ?", distributorID)
	if eventType != "" {
		q = q.Where("type = ?", eventType)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Event
	err := q.Order("occurred_at ASC").Order("created_at ASC").Find(&out).Error
	return out, err
}

// Totals summarises a distributor's indexed claim activity.
type Totals struct {
	Claimants int64
	Unlocked  uint64
	Withdrawn uint64
}

// Claimed is the total amount paid out to claimants.
func (t Totals) Claimed() uint64 { return t.Unlocked + t.Withdrawn }

func (i *Index) Totals(ctx context.Context, distributorID string) (Totals, error) {
	var claims []Claim
	if err := i.db.WithContext(ctx).Where("distributor_id = ?", distributorID).Find(&claims).Error; err != nil {
		return Totals{}, err
	}
	out := Totals{Claimants: int64(len(claims))}
	for _, c := range claims {
		out.Unlocked += c.UnlockedAmount
		out.Withdrawn += c.Withdrawn
	}
	return out, nil
}

func parseUint(raw string) uint64 {
	v, _ := strconv.ParseUint(raw, 10, 64)
	return v
}

func parseInt(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}
