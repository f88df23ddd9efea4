package branch

import (
	"errors"
	"time"

	"github.com/noah-isme/cargo-backoffice/internal/query"
)

var (
	ErrNotFound            = errors.New("branch not found")
	ErrDuplicateCode       = errors.New("branch code already exists")
	ErrUnknownNomenclature = errors.New("unknown nomenclature")
)

// Branch is a destination office that owns tariffs and a nomenclature whitelist.
type Branch struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateInput is the payload for POST /branches.
type CreateInput struct {
	Code    string `json:"code" validate:"required,max=32"`
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
}

// NomenclatureInput replaces the whitelist of a branch.
type NomenclatureInput struct {
	NomenclatureIDs []int64 `json:"nomenclature_ids" validate:"max=5000,dive,gt=0"`
}

// Columns are the fields clients may filter and sort branches by.
var Columns = query.Columns{
	"id":   "b.id",
	"code": "b.code",
	"name": "b.name",
}
