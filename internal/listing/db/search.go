package db

import (
	"context"
	"errors"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// ErrUnknownSort は未定義の並び順が指定された場合に返される。
var ErrUnknownSort = errors.New("unknown sort key")

// DefaultSort は並び順が指定されない場合のキー。
const DefaultSort = "recent"

// sortOrders は並び順のキーとORDER BY句の対応。
// ここに無いキーはSQLに到達しない。
var sortOrders = map[string][]string{
	"recent":     {"created_at DESC", "id DESC"},
	"oldest":     {"created_at ASC", "id ASC"},
	"event_date": {"event_date DESC", "created_at DESC", "id DESC"},
	"views":      {"view_count DESC", "created_at DESC", "id DESC"},
}

// IsSortKey は並び順のキーとして有効かどうかを返す。
func IsSortKey(key string) bool {
	_, ok := sortOrders[key]
	return ok
}

// SortKeys は有効な並び順のキーをソートして返す。
func SortKeys() []string {
	keys := make([]string, 0, len(sortOrders))
	for k := range sortOrders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SearchFilter は投稿検索の条件。空のフィールドは条件に含めない。
type SearchFilter struct {
	Category string
	Kind     string
	// Country はISO 3166-1 alpha-2。大文字小文字は区別しない。
	Country string
	// City は大文字小文字を区別せず完全一致で比較する。アクセント付きの文字も対象。
	City string
	// Query はタイトル・説明・最後に目撃された場所の部分一致。大文字小文字は区別しない。
	Query string
	// From と To はevent_dateの範囲（YYYY-MM-DD、両端を含む）。
	From string
	To   string
	// Statuses は対象ステータス。空の場合は全ステータス。
	Statuses []string
	// OwnerID は投稿者で絞り込む。
	OwnerID string
	// Sort は並び順のキー。空の場合はDefaultSort。
	Sort   string
	Limit  uint64
	Offset uint64
}

// likeEscaper はLIKEのワイルドカードを通常の文字として扱うためにエスケープする。
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (f SearchFilter) where() sq.And {
	cond := sq.And{}
	if f.Category != "" {
		cond = append(cond, sq.Eq{"category": f.Category})
	}
	if f.Kind != "" {
		cond = append(cond, sq.Eq{"kind": f.Kind})
	}
	if f.Country != "" {
		cond = append(cond, sq.Eq{"country": strings.ToUpper(f.Country)})
	}
	if f.City != "" {
		cond = append(cond, sq.Eq{"city_key": FoldKey(f.City)})
	}
	if q := FoldKey(f.Query); q != "" {
		like := "%" + likeEscaper.Replace(q) + "%"
		cond = append(cond, sq.Expr(`search_text LIKE ? ESCAPE '\'`, like))
	}
	if f.From != "" {
		cond = append(cond, sq.GtOrEq{"event_date": f.From})
	}
	if f.To != "" {
		cond = append(cond, sq.LtOrEq{"event_date": f.To})
	}
	if len(f.Statuses) > 0 {
		cond = append(cond, sq.Eq{"status": f.Statuses})
	}
	if f.OwnerID != "" {
		cond = append(cond, sq.Eq{"owner_id": f.OwnerID})
	}
	return cond
}

// SearchQuery は検索条件からSELECT文を組み立てる。
func (f SearchFilter) SearchQuery() (string, []any, error) {
	key := f.Sort
	if key == "" {
		key = DefaultSort
	}
	order, ok := sortOrders[key]
	if !ok {
		return "", nil, ErrUnknownSort
	}
	b := sq.Select(listingColumns).
		From("listings").
		Where(f.where()).
		OrderBy(order...)
	if f.Limit > 0 {
		b = b.Limit(f.Limit).Offset(f.Offset)
	}
	return b.ToSql()
}

// CountQuery は検索条件に一致する件数を数えるSELECT文を組み立てる。
func (f SearchFilter) CountQuery() (string, []any, error) {
	return sq.Select("COUNT(*)").From("listings").Where(f.where()).ToSql()
}

// SearchListings は条件に一致する投稿を返す。
func (q *Queries) SearchListings(ctx context.Context, f SearchFilter) ([]Listing, error) {
	query, args, err := f.SearchQuery()
	if err != nil {
		return nil, err
	}
	listings := []Listing{}
	if err := sqlx.SelectContext(ctx, q.db, &listings, query, args...); err != nil {
		return nil, err
	}
	return listings, nil
}

// CountListings は条件に一致する投稿数を返す。
func (q *Queries) CountListings(ctx context.Context, f SearchFilter) (int64, error) {
	query, args, err := f.CountQuery()
	if err != nil {
		return 0, err
	}
	var n int64
	err = sqlx.GetContext(ctx, q.db, &n, query, args...)
	return n, err
}
