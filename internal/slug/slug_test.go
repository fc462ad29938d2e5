package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Israël", "israel"},
		{"  climate   change  ", "climate-change"},
		{"normen en waarden", "normen-en-waarden"},
		{"Café_crème", "cafe-creme"},
		{"AOW-leeftijd?!", "aow-leeftijd"},
		{"--stikstof--", "stikstof"},
		{"zorg & welzijn", "zorg-welzijn"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestSlugifyIsIdempotent(t *testing.T) {
	inputs := []string{"Israël", "  climate   change  ", "Defensie: 2% NAVO-norm", "één twee drie", "a__b--c"}
	for _, in := range inputs {
		once := Slugify(in)
		assert.Equal(t, once, Slugify(once), in)
	}
}

func TestDeslugify(t *testing.T) {
	assert.Equal(t, "Israel", Deslugify("israel"))
	assert.Equal(t, "Climate Change", Deslugify("climate-change"))
	assert.Equal(t, "Normen En Waarden", Deslugify("normen-en-waarden"))
	assert.Equal(t, "", Deslugify(""))
}
