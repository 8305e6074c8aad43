package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	Name     string `validate:"required,min=1,max=10"`
	Email    string `validate:"required,email"`
	Currency string `validate:"omitempty,currency"`
	Kind     string `validate:"omitempty,oneof=A B"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(request{Name: "trip", Email: "a@b.co", Currency: "inr", Kind: "A"}))

	err := Struct(request{Email: "nope", Currency: "RUPEES", Kind: "C"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Name is required")
	assert.Contains(t, err.Error(), "Email must be a valid email")
	assert.Contains(t, err.Error(), "Currency must be a 3-letter currency code")
	assert.Contains(t, err.Error(), "Kind must be one of [A B]")
}

type item struct {
	ID string `validate:"required"`
}

type order struct {
	Items []item `validate:"required,min=1,dive"`
	Extra item
}

func TestStructDivesIntoSlices(t *testing.T) {
	require.NoError(t, Struct(order{Items: []item{{ID: "a"}}, Extra: item{ID: "x"}}))

	err := Struct(order{Items: []item{{ID: "a"}, {}}, Extra: item{ID: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Items[1].ID is required")

	err = Struct(order{Extra: item{ID: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Items is required")
}
