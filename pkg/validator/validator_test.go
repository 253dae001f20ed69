package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

type createOrderInput struct {
	ProductID string `validate:"required,uuid"`
	Quantity  int    `validate:"required,gt=0"`
}

func TestValidate_Valid(t *testing.T) {
	input := createOrderInput{
		ProductID: "d7f3b7a8-8a3c-4be1-9f5e-2f1f7a0f9c11",
		Quantity:  3,
	}

	assert.NoError(t, Validate(input))
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(createOrderInput{Quantity: 1})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "is required", valErr.Fields()["ProductID"])
}

func TestValidate_QuantityNotPositive(t *testing.T) {
	err := Validate(createOrderInput{
		ProductID: "d7f3b7a8-8a3c-4be1-9f5e-2f1f7a0f9c11",
		Quantity:  -2,
	})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be greater than 0", valErr.Fields()["Quantity"])
}

func TestValidate_BadUUID(t *testing.T) {
	err := Validate(createOrderInput{ProductID: "not-a-uuid", Quantity: 1})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be a valid UUID", valErr.Fields()["ProductID"])
	assert.Contains(t, valErr.Error(), "ProductID")
}

func TestDecodeAndValidate_Valid(t *testing.T) {
	body := `{"ProductID": "d7f3b7a8-8a3c-4be1-9f5e-2f1f7a0f9c11", "Quantity": 2}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var in createOrderInput
	require.NoError(t, DecodeAndValidate(r, &in))
	assert.Equal(t, 2, in.Quantity)
}

func TestDecodeAndValidate_MalformedBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))

	var in createOrderInput
	err := DecodeAndValidate(r, &in)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDecodeAndValidate_InvalidFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"Quantity": 0}`))

	var in createOrderInput
	err := DecodeAndValidate(r, &in)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields(), "ProductID")
	assert.Contains(t, valErr.Fields(), "Quantity")
}
