package listing

import (
	"testing"
)

func TestEncodeAttributes(t *testing.T) {
	t.Parallel()

	age := 12
	all := Attributes{
		FullName:   "Moussa Traoré",
		Age:        &age,
		Gender:     "male",
		Species:    "chien",
		Breed:      "berger",
		Color:      "noir",
		ObjectType: "téléphone",
		Brand:      "Tecno",
	}

	tests := []struct {
		name     string
		category string
		want     string
	}{
		{
			name:     "正常系_人物の属性だけが残る",
			category: "person",
			want:     `{"full_name":"Moussa Traoré","age":12,"gender":"male"}`,
		},
		{
			name:     "正常系_動物の属性だけが残る",
			category: "animal",
			want:     `{"species":"chien","breed":"berger","color":"noir"}`,
		},
		{
			name:     "正常系_物の属性だけが残る",
			category: "object",
			want:     `{"object_type":"téléphone","brand":"Tecno"}`,
		},
		{
			name:     "正常系_未知のカテゴリは空オブジェクト",
			category: "vehicle",
			want:     `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := encodeAttributes(tt.category, all)
			if err != nil {
				t.Fatalf("encodeAttributes()でエラーが発生: %v", err)
			}
			if got != tt.want {
				t.Errorf("encodeAttributes() = %s, want %s", got, tt.want)
			}
		})
	}
}
