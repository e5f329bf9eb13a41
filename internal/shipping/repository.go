package shipping

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists shipping zones.
type Repository interface {
	ZoneReader
	Create(ctx context.Context, zone *models.ShippingZone) error
	Save(ctx context.Context, zone *models.ShippingZone) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ShippingZone, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a zone repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]models.ShippingZone, error) {
	q := r.db.WithContext(ctx).Model(&models.ShippingZone{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var zones []models.ShippingZone
	if err := q.Order("name ASC").Find(&zones).Error; err != nil {
		return nil, err
	}
	return zones, nil
}

func (r *repository) Create(ctx context.Context, zone *models.ShippingZone) error {
	if zone.ID == uuid.Nil {
		zone.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(zone).Error
}

func (r *repository) Save(ctx context.Context, zone *models.ShippingZone) error {
	return r.db.WithContext(ctx).Save(zone).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.ShippingZone{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ShippingZone, error) {
	var zone models.ShippingZone
	if err := r.db.WithContext(ctx).First(&zone, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &zone, nil
}
