package repository

import (
	"context"
	"errors"

	"marketplace-chat/internal/domain/product"
	marketplace_errors "marketplace-chat/pkg/errors"

	"gorm.io/gorm"
)

type PostgresProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &PostgresProductRepository{db: db}
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id uint) (product.Product, error) {
	var p product.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return product.Product{}, marketplace_errors.ErrNotFound
		}
		return product.Product{}, err
	}
	return p, nil
}

func (r *PostgresProductRepository) GetSummaries(ctx context.Context, ids []uint) (map[uint]product.Summary, error) {
	out := make(map[uint]product.Summary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var products []product.Product
	err := r.db.WithContext(ctx).
		Select("id", "name", "name_slug").
		Where("id IN ?", ids).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = product.Summary{ID: p.ID, Name: p.Name, Slug: p.NameSlug}
	}

	var media []product.Media
	err = r.db.WithContext(ctx).
		Where("product_id IN ?", ids).
		Order("product_id ASC").
		Order("sort_order ASC").
		Order("id ASC").
		Find(&media).Error
	if err != nil {
		return nil, err
	}
	for _, m := range media {
		s, ok := out[m.ProductID]
		if !ok || s.Image != nil {
			continue
		}
		url := m.URL
		s.Image = &url
		out[m.ProductID] = s
	}
	return out, nil
}
