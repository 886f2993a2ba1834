// Package validation はリクエストのバリデーションルールを提供する。
//
// Ginのbindingが内部で使用するvalidator/v10エンジンに、国コードや
// 投稿カテゴリなどドメイン固有のタグを登録する。
package validation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// カテゴリ。
const (
	CategoryPerson = "person"
	CategoryAnimal = "animal"
	CategoryObject = "object"
)

// 投稿種別。
const (
	KindLost  = "lost"
	KindFound = "found"
)

// countries はアフリカ54か国のISO 3166-1 alpha-2コードとフランス語名。
var countries = map[string]string{
	"DZ": "Algérie", "AO": "Angola", "BJ": "Bénin", "BW": "Botswana",
	"BF": "Burkina Faso", "BI": "Burundi", "CV": "Cap-Vert", "CM": "Cameroun",
	"CF": "République centrafricaine", "TD": "Tchad", "KM": "Comores",
	"CG": "Congo", "CD": "République démocratique du Congo", "CI": "Côte d'Ivoire",
	"DJ": "Djibouti", "EG": "Égypte", "GQ": "Guinée équatoriale", "ER": "Érythrée",
	"SZ": "Eswatini", "ET": "Éthiopie", "GA": "Gabon", "GM": "Gambie",
	"GH": "Ghana", "GN": "Guinée", "GW": "Guinée-Bissau", "KE": "Kenya",
	"LS": "Lesotho", "LR": "Liberia", "LY": "Libye", "MG": "Madagascar",
	"MW": "Malawi", "ML": "Mali", "MR": "Mauritanie", "MU": "Maurice",
	"MA": "Maroc", "MZ": "Mozambique", "NA": "Namibie", "NE": "Niger",
	"NG": "Nigeria", "RW": "Rwanda", "ST": "Sao Tomé-et-Principe", "SN": "Sénégal",
	"SC": "Seychelles", "SL": "Sierra Leone", "SO": "Somalie", "ZA": "Afrique du Sud",
	"SS": "Soudan du Sud", "SD": "Soudan", "TZ": "Tanzanie", "TG": "Togo",
	"TN": "Tunisie", "UG": "Ouganda", "ZM": "Zambie", "ZW": "Zimbabwe",
}

var categoryLabels = map[string]string{
	CategoryPerson: "Personne disparue",
	CategoryAnimal: "Animal perdu",
	CategoryObject: "Objet",
}

var kindLabels = map[string]string{
	KindLost:  "perdu",
	KindFound: "trouvé",
}

// IsAfricanCountry はコードがアフリカの国コードかどうかを返す。大文字小文字は区別しない。
func IsAfricanCountry(code string) bool {
	_, ok := countries[strings.ToUpper(code)]
	return ok
}

// CountryName は国コードに対応する国名を返す。未知のコードはそのまま返す。
func CountryName(code string) string {
	if name, ok := countries[strings.ToUpper(code)]; ok {
		return name
	}
	return code
}

// CountryCodes は登録されている国コードをソートして返す。
func CountryCodes() []string {
	codes := make([]string, 0, len(countries))
	for c := range countries {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// IsCategory はカテゴリとして有効な値かどうかを返す。
func IsCategory(v string) bool {
	_, ok := categoryLabels[v]
	return ok
}

// CategoryLabel はカテゴリの表示名を返す。
func CategoryLabel(v string) string {
	if l, ok := categoryLabels[v]; ok {
		return l
	}
	return v
}

// IsKind は投稿種別として有効な値かどうかを返す。
func IsKind(v string) bool {
	_, ok := kindLabels[v]
	return ok
}

// KindLabel は投稿種別の表示名を返す。
func KindLabel(v string) string {
	if l, ok := kindLabels[v]; ok {
		return l
	}
	return v
}

var registerOnce sync.Once
var registerErr error

// Register はGinのバリデータにカスタムタグを登録する。複数回呼んでも一度だけ登録される。
//
//	africancountry: アフリカの国コード
//	category:       person, animal, object
//	listingkind:    lost, found
func Register() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("validator/v10のエンジンを取得できません")
			return
		}
		registerErr = RegisterOn(v)
	})
	return registerErr
}

// RegisterOn は指定したバリデータにカスタムタグを登録する。
func RegisterOn(v *validator.Validate) error {
	rules := map[string]func(string) bool{
		"africancountry": IsAfricanCountry,
		"category":       IsCategory,
		"listingkind":    IsKind,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, stringRule(fn)); err != nil {
			return fmt.Errorf("バリデーション %s の登録に失敗: %w", tag, err)
		}
	}
	return nil
}

func stringRule(fn func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return fn(fl.Field().String())
	}
}
