package pagination

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		page    string
		perPage string
		want    Page
		wantErr bool
	}{
		{name: "正常系_未指定の場合はデフォルト値", want: Page{Number: 1, PerPage: DefaultPerPage}},
		{name: "正常系_指定値が反映される", page: "3", perPage: "50", want: Page{Number: 3, PerPage: 50}},
		{name: "正常系_per_pageの上限値", perPage: "100", want: Page{Number: 1, PerPage: 100}},
		{name: "異常系_pageが0", page: "0", wantErr: true},
		{name: "異常系_pageが数値でない", page: "abc", wantErr: true},
		{name: "異常系_pageが負数", page: "-1", wantErr: true},
		{name: "異常系_per_pageが上限超過", perPage: "101", wantErr: true},
		{name: "異常系_per_pageが0", perPage: "0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parse(tt.page, tt.perPage)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Fatalf("err = %v, want ErrInvalid", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse()でエラーが発生: %v", err)
			}
			if got != tt.want {
				t.Errorf("parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPageOffset(t *testing.T) {
	t.Parallel()

	p := Page{Number: 3, PerPage: 20}
	if p.Offset() != 40 {
		t.Errorf("Offset() = %d, want 40", p.Offset())
	}
	if p.Limit() != 20 {
		t.Errorf("Limit() = %d, want 20", p.Limit())
	}
}
