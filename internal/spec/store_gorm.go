package spec

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/madcok-co/consumerd/internal/apierr"
	"gorm.io/gorm"
)

// GormStore is the optional durable Specification Store (§4.C permits a
// durable backing): one gorm.DB, WithContext on every call, AutoMigrate
// at construction instead of a separate migration tool.
type GormStore struct {
	db *gorm.DB
}

// specRow is the persisted row shape; Processors is flattened to JSON
// since the processor list has no independent identity outside its spec.
type specRow struct {
	ID             string `gorm:"primarykey"`
	BrokerHost     string
	BrokerPort     int
	Topic          string
	GroupID        string
	ClientID       string
	AutoStart      bool
	ProcessorsJSON string `gorm:"type:text"`
	Status         string
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (specRow) TableName() string { return "consumer_specs" }

// NewGormStore wraps an already-opened *gorm.DB and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&specRow{}); err != nil {
		return nil, apierr.Wrap(apierr.StoreIO, "auto-migrate consumer_specs", err)
	}
	return &GormStore{db: db}, nil
}

func toRow(s *ConsumerSpec) (*specRow, error) {
	data, err := json.Marshal(s.Processors)
	if err != nil {
		return nil, err
	}
	return &specRow{
		ID:             s.ID,
		BrokerHost:     s.BrokerHost,
		BrokerPort:     s.BrokerPort,
		Topic:          s.Topic,
		GroupID:        s.GroupID,
		ClientID:       s.ClientID,
		AutoStart:      s.AutoStart,
		ProcessorsJSON: string(data),
		Status:         string(s.Status),
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}, nil
}

func fromRow(r *specRow) (*ConsumerSpec, error) {
	var processors []ProcessorConfig
	if r.ProcessorsJSON != "" {
		if err := json.Unmarshal([]byte(r.ProcessorsJSON), &processors); err != nil {
			return nil, err
		}
	}
	return &ConsumerSpec{
		ID:         r.ID,
		BrokerHost: r.BrokerHost,
		BrokerPort: r.BrokerPort,
		Topic:      r.Topic,
		GroupID:    r.GroupID,
		ClientID:   r.ClientID,
		AutoStart:  r.AutoStart,
		Processors: processors,
		Status:     Status(r.Status),
		LastError:  r.LastError,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

func (g *GormStore) Create(ctx context.Context, s *ConsumerSpec) error {
	row, err := toRow(s)
	if err != nil {
		return apierr.Wrap(apierr.StoreIO, "encode consumer spec", err)
	}
	now := time.Now()
	row.CreatedAt, row.UpdatedAt = now, now

	if err := g.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apierr.New(apierr.Conflict, "id already exists: "+s.ID)
		}
		return apierr.Wrap(apierr.StoreIO, "insert consumer spec", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

func (g *GormStore) Get(ctx context.Context, id string) (*ConsumerSpec, error) {
	var row specRow
	if err := g.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.New(apierr.NotFound, "consumer spec not found: "+id)
		}
		return nil, apierr.Wrap(apierr.StoreIO, "fetch consumer spec", err)
	}
	return fromRow(&row)
}

func (g *GormStore) List(ctx context.Context) ([]*ConsumerSpec, error) {
	var rows []specRow
	if err := g.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, apierr.Wrap(apierr.StoreIO, "list consumer specs", err)
	}
	out := make([]*ConsumerSpec, 0, len(rows))
	for i := range rows {
		s, err := fromRow(&rows[i])
		if err != nil {
			return nil, apierr.Wrap(apierr.StoreIO, "decode consumer spec", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (g *GormStore) Update(ctx context.Context, id string, patch Patch) (*ConsumerSpec, error) {
	current, err := g.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(current)
	current.UpdatedAt = time.Now()

	row, err := toRow(current)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreIO, "encode consumer spec", err)
	}
	if err := g.db.WithContext(ctx).Model(&specRow{}).Where("id = ?", id).Updates(row).Error; err != nil {
		return nil, apierr.Wrap(apierr.StoreIO, "update consumer spec", err)
	}
	return current, nil
}

func (g *GormStore) Delete(ctx context.Context, id string) error {
	result := g.db.WithContext(ctx).Delete(&specRow{}, "id = ?", id)
	if result.Error != nil {
		return apierr.Wrap(apierr.StoreIO, "delete consumer spec", result.Error)
	}
	if result.RowsAffected == 0 {
		return apierr.New(apierr.NotFound, "consumer spec not found: "+id)
	}
	return nil
}

func (g *GormStore) SetStatus(ctx context.Context, id string, status Status, lastError string) error {
	result := g.db.WithContext(ctx).Model(&specRow{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "last_error": lastError, "updated_at": time.Now()})
	if result.Error != nil {
		return apierr.Wrap(apierr.StoreIO, "set consumer spec status", result.Error)
	}
	if result.RowsAffected == 0 {
		return apierr.New(apierr.NotFound, "consumer spec not found: "+id)
	}
	return nil
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*GormStore)(nil)
