package relational

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ============================================================================
// Generic GORM Helpers
// ============================================================================
//
// These helpers reduce repetitive CRUD boilerplate across the transaction
// methods. They operate on the raw *gorm.DB of the open transaction and handle
// context propagation and not-found conversion.

// firstWhere retrieves a single record of type T matching the conditions.
// gorm.ErrRecordNotFound is converted to notFoundErr.
func firstWhere[T any](db *gorm.DB, ctx context.Context, notFoundErr error, query string, args ...any) (*T, error) {
	var result T
	if err := db.WithContext(ctx).Where(query, args...).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// findWhere retrieves all records of type T matching the conditions.
// Returns an empty slice (not nil) on success with no records.
func findWhere[T any](db *gorm.DB, ctx context.Context, query string, args ...any) ([]*T, error) {
	results := []*T{}
	if err := db.WithContext(ctx).Where(query, args...).Find(&results).Error; err != nil {
		return nil, mapError("query", err)
	}
	return results, nil
}

// upsert inserts entity or, on a primary key conflict, overwrites every column.
func upsert[T any](db *gorm.DB, ctx context.Context, entity *T) error {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(entity).Error
	return mapError("upsert", err)
}

// deleteWhere deletes records of type T matching the conditions. Deleting
// nothing is not an error.
func deleteWhere[T any](db *gorm.DB, ctx context.Context, query string, args ...any) error {
	var zero T
	err := db.WithContext(ctx).Where(query, args...).Delete(&zero).Error
	return mapError("delete", err)
}
