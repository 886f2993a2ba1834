package listing

import (
	"encoding/json"
	"fmt"

	"github.com/nao1215/retrouvafrik/pkg/validation"
)

// Attributes はカテゴリ固有の属性。listings.attributesにJSONで保存する。
type Attributes struct {
	// 行方不明者
	FullName string `json:"full_name,omitempty" binding:"omitempty,max=120"`
	Age      *int   `json:"age,omitempty" binding:"omitempty,min=0,max=130"`
	Gender   string `json:"gender,omitempty" binding:"omitempty,oneof=male female other"`

	// 動物
	Species string `json:"species,omitempty" binding:"omitempty,max=60"`
	Breed   string `json:"breed,omitempty" binding:"omitempty,max=60"`
	Color   string `json:"color,omitempty" binding:"omitempty,max=60"`

	// 物
	ObjectType string `json:"object_type,omitempty" binding:"omitempty,max=60"`
	Brand      string `json:"brand,omitempty" binding:"omitempty,max=60"`
}

// forCategory はカテゴリに関係しない属性を取り除いたコピーを返す。
func (a Attributes) forCategory(category string) Attributes {
	switch category {
	case validation.CategoryPerson:
		return Attributes{FullName: a.FullName, Age: a.Age, Gender: a.Gender}
	case validation.CategoryAnimal:
		return Attributes{Species: a.Species, Breed: a.Breed, Color: a.Color}
	case validation.CategoryObject:
		return Attributes{ObjectType: a.ObjectType, Brand: a.Brand}
	default:
		return Attributes{}
	}
}

// encodeAttributes はカテゴリに応じて属性を絞り込み、JSON文字列にする。
func encodeAttributes(category string, a Attributes) (string, error) {
	b, err := json.Marshal(a.forCategory(category))
	if err != nil {
		return "", fmt.Errorf("属性のシリアライズに失敗: %w", err)
	}
	return string(b), nil
}
