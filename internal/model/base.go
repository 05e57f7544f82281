package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Pagination represents common pagination parameters
type Pagination struct {
	Page     int `json:"page" form:"page"`
	PageSize int `json:"page_size" form:"page_size"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Normalize clamps page and page size to sane bounds.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Pagination) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PageSize
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}

// JSONB is an opaque JSON document stored in a jsonb column. A nil JSONB
// maps to SQL NULL and to JSON null.
type JSONB json.RawMessage

// NewJSONB marshals v into a JSONB snapshot. A nil v yields a nil JSONB.
func NewJSONB(v interface{}) (JSONB, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(JSONB); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	return JSONB(b), nil
}

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	// lib/pq sends []byte as bytea, which jsonb rejects
	return string(j), nil
}

func (j *JSONB) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", src)
	}
	return nil
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONB) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*j = nil
		return nil
	}
	*j = append((*j)[:0], b...)
	return nil
}
