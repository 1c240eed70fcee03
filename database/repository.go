/*
 * Copyright 2024 SRVX Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"math"
	"time"

	"gorm.io/gorm"
)

type Model struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Pageable struct {
	// Page 0-indexed
	Page uint `json:"page"`
	// Size zero for unlimited
	Size uint `json:"size"`
	// Sort for example "FIELD desc,FIELD"
	Sort string `json:"sort,omitempty"`
}

type Page[T any] struct {
	Content       []T      `json:"content"`
	TotalElements int      `json:"total_elements"`
	TotalPages    int      `json:"total_pages"`
	Pageable      Pageable `json:"pageable"`
}

type Repository[T any] interface {
	Save(v *T) error
	Delete(query interface{}, conds ...interface{}) error
	Count(query interface{}, conds ...interface{}) (int64, error)
	FindByID(id interface{}) (*T, error)
	FindOne(query interface{}, conds ...interface{}) (*T, error)
	Find(query interface{}, conds ...interface{}) ([]T, error)
	FindWithOrder(order string, query interface{}, conds ...interface{}) ([]T, error)
	Page(p Pageable, query interface{}, conds ...interface{}) (*Page[T], error)
	Transaction(fc func(tx Repository[T]) error) error
}

type TableRepository[T any] struct {
	db   *gorm.DB
	name string
}

func NewTableRepository[T any](db *gorm.DB, name string) (*TableRepository[T], error) {
	if err := db.Table(name).AutoMigrate(new(T)); err != nil {
		return nil, err
	}
	return &TableRepository[T]{
		db:   db,
		name: name,
	}, nil
}

func (r *TableRepository[T]) table() *gorm.DB {
	if len(r.name) > 0 {
		return r.db.Table(r.name)
	}
	return r.db
}

func (r *TableRepository[T]) where(query interface{}, conds ...interface{}) *gorm.DB {
	ret := r.table()
	if query != nil {
		ret = ret.Where(query, conds...)
	}
	return ret
}

func filterError(err error) error {
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}
	return nil
}

func (r *TableRepository[T]) Save(v *T) error {
	return r.table().Save(v).Error
}

func (r *TableRepository[T]) Delete(query interface{}, conds ...interface{}) error {
	return r.table().Delete(query, conds...).Error
}

func (r *TableRepository[T]) Count(query interface{}, conds ...interface{}) (int64, error) {
	var count int64
	if err := r.where(query, conds...).Count(&count).Error; err != nil {
		return -1, err
	}
	return count, nil
}

// FindByID returns nil without error when no record matches.
func (r *TableRepository[T]) FindByID(id interface{}) (*T, error) {
	v := new(T)
	if err := r.table().First(v, id).Error; err != nil {
		return nil, filterError(err)
	}
	return v, nil
}

func (r *TableRepository[T]) FindOne(query interface{}, conds ...interface{}) (*T, error) {
	v := new(T)
	if err := r.where(query, conds...).First(v).Error; err != nil {
		return nil, filterError(err)
	}
	return v, nil
}

func (r *TableRepository[T]) Find(query interface{}, conds ...interface{}) ([]T, error) {
	var l []T
	if err := r.where(query, conds...).Find(&l).Error; err != nil {
		return nil, filterError(err)
	}
	return l, nil
}

func (r *TableRepository[T]) FindWithOrder(order string, query interface{}, conds ...interface{}) ([]T, error) {
	var l []T
	if err := r.where(query, conds...).Order(order).Find(&l).Error; err != nil {
		return nil, filterError(err)
	}
	return l, nil
}

func (r *TableRepository[T]) Page(p Pageable, query interface{}, conds ...interface{}) (*Page[T], error) {
	ret := r.where(query, conds...)
	var count int64
	ret = ret.Count(&count)
	if p.Size > 0 {
		ret = ret.Offset(int(p.Page * p.Size)).Limit(int(p.Size))
	}
	if len(p.Sort) > 0 {
		ret = ret.Order(p.Sort)
	}
	var l []T
	if err := ret.Find(&l).Error; err != nil {
		return nil, filterError(err)
	}
	totalPages := 0
	if count > 0 {
		totalPages = 1
		if p.Size > 0 {
			totalPages = int(math.Ceil(float64(count) / float64(p.Size)))
		}
	}
	return &Page[T]{
		Content:       l,
		TotalElements: int(count),
		TotalPages:    totalPages,
		Pageable:      p,
	}, nil
}

func (r *TableRepository[T]) Transaction(fc func(tx Repository[T]) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fc(&TableRepository[T]{db: tx, name: r.name})
	})
}
