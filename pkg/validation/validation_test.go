package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

type sampleRequest struct {
	Country  string `validate:"required,africancountry"`
	Category string `validate:"required,category"`
	Kind     string `validate:"omitempty,listingkind"`
}

func TestRegisterOn(t *testing.T) {
	t.Parallel()

	v := validator.New()
	if err := RegisterOn(v); err != nil {
		t.Fatalf("RegisterOn()でエラーが発生: %v", err)
	}

	tests := []struct {
		name    string
		req     sampleRequest
		wantErr bool
	}{
		{name: "有効な値", req: sampleRequest{Country: "SN", Category: "animal", Kind: "lost"}},
		{name: "国コードは小文字でもよい", req: sampleRequest{Country: "ci", Category: "person"}},
		{name: "アフリカ以外の国コード", req: sampleRequest{Country: "FR", Category: "person"}, wantErr: true},
		{name: "未知のカテゴリ", req: sampleRequest{Country: "SN", Category: "vehicle"}, wantErr: true},
		{name: "未知の種別", req: sampleRequest{Country: "SN", Category: "object", Kind: "stolen"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Struct(tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("Struct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	if err := Register(); err != nil {
		t.Fatalf("Register()でエラーが発生: %v", err)
	}
	if err := Register(); err != nil {
		t.Fatalf("2回目のRegister()でエラーが発生: %v", err)
	}
}

func TestCountries(t *testing.T) {
	t.Parallel()

	if got := len(CountryCodes()); got != 54 {
		t.Errorf("国の数 = %d, want 54", got)
	}
	if got := CountryName("cm"); got != "Cameroun" {
		t.Errorf("CountryName(cm) = %q, want Cameroun", got)
	}
	if got := CountryName("XX"); got != "XX" {
		t.Errorf("CountryName(XX) = %q, want XX", got)
	}
	if got := CategoryLabel(CategoryAnimal); got != "Animal perdu" {
		t.Errorf("CategoryLabel(animal) = %q", got)
	}
}
