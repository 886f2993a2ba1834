// Package pagination は一覧APIのページ指定（page, per_page）を扱う。
package pagination

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultPerPage はper_page未指定時の件数。
	DefaultPerPage = 20
	// MaxPerPage はper_pageの上限。
	MaxPerPage = 100
)

// ErrInvalid はpageまたはper_pageが不正な場合に返される。
var ErrInvalid = errors.New("pagination invalide")

// Page はページ指定。
type Page struct {
	Number  uint64 `json:"page"`
	PerPage uint64 `json:"per_page"`
}

// Offset はSQLのOFFSETに渡す値を返す。
func (p Page) Offset() uint64 {
	return (p.Number - 1) * p.PerPage
}

// Limit はSQLのLIMITに渡す値を返す。
func (p Page) Limit() uint64 {
	return p.PerPage
}

// FromQuery はクエリパラメータpage（1以上）とper_page（1〜MaxPerPage）を読み取る。
func FromQuery(c *gin.Context) (Page, error) {
	return parse(c.Query("page"), c.Query("per_page"))
}

func parse(page, perPage string) (Page, error) {
	p := Page{Number: 1, PerPage: DefaultPerPage}
	if page != "" {
		n, err := strconv.ParseUint(page, 10, 64)
		if err != nil || n < 1 {
			return Page{}, ErrInvalid
		}
		p.Number = n
	}
	if perPage != "" {
		n, err := strconv.ParseUint(perPage, 10, 64)
		if err != nil || n < 1 || n > MaxPerPage {
			return Page{}, ErrInvalid
		}
		p.PerPage = n
	}
	return p, nil
}
