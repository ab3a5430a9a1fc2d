package orders

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type ProcessedEventRepo interface {
	// Begin records the event if unseen. fresh is true only for the first delivery;
	// status is the stored status after the call.
	Begin(dbc dbctx.Context, source, eventID string) (status types.EventStatus, fresh bool, err error)
	MarkDone(dbc dbctx.Context, source, eventID string) error
	Get(dbc dbctx.Context, source, eventID string) (*types.ProcessedEvent, error)
}

type processedEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessedEventRepo(db *gorm.DB, baseLog *logger.Logger) ProcessedEventRepo {
	return &processedEventRepo{db: db, log: baseLog.With("repo", "ProcessedEventRepo")}
}

func (r *processedEventRepo) Begin(dbc dbctx.Context, source, eventID string) (types.EventStatus, bool, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	row := &types.ProcessedEvent{
		Source:   source,
		EventID:  eventID,
		Status:   types.EventProcessing,
		Attempts: 1,
	}
	res := t.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return "", false, res.Error
	}
	if res.RowsAffected > 0 {
		return types.EventProcessing, true, nil
	}

	if err := t.WithContext(dbc.Ctx).
		Model(&types.ProcessedEvent{}).
		Where("source = ? AND event_id = ?", source, eventID).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return "", false, err
	}
	existing, err := r.Get(dbc, source, eventID)
	if err != nil {
		return "", false, err
	}
	if existing == nil {
		return types.EventProcessing, false, nil
	}
	return existing.Status, false, nil
}

func (r *processedEventRepo) MarkDone(dbc dbctx.Context, source, eventID string) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx).
		Model(&types.ProcessedEvent{}).
		Where("source = ? AND event_id = ?", source, eventID).
		Updates(map[string]interface{}{
			"status":     types.EventDone,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *processedEventRepo) Get(dbc dbctx.Context, source, eventID string) (*types.ProcessedEvent, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var row types.ProcessedEvent
	if err := t.WithContext(dbc.Ctx).
		Where("source = ? AND event_id = ?", source, eventID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.EventID == "" {
		return nil, nil
	}
	return &row, nil
}
