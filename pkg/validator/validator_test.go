package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=100"`
	Note      string `json:"-" validate:"max=5"`
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(addRequest{ProductID: "wf-001", Quantity: 2}))
}

func TestValidate_MissingRequired_UsesJSONName(t *testing.T) {
	err := Validate(addRequest{Quantity: 1})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["product_id"])
}

func TestValidate_OutOfRange(t *testing.T) {
	err := Validate(addRequest{ProductID: "wf-001", Quantity: 0})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be greater than or equal to 1", valErr.Fields()["quantity"])
	assert.Contains(t, err.Error(), "field 'quantity'")
}

func TestValidate_UnexportedJSONFieldStillValidated(t *testing.T) {
	err := Validate(addRequest{ProductID: "x", Quantity: 1, Note: "too long"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Len(t, valErr.Fields(), 1)
}

type categoryRequest struct {
	Category string `json:"category" validate:"required,test_color"`
}

func TestRegisterOneOf(t *testing.T) {
	require.NoError(t, RegisterOneOf("test_color", []string{"red", "Dark Blue"}))

	assert.NoError(t, Validate(categoryRequest{Category: "Dark Blue"}))

	err := Validate(categoryRequest{Category: "green"})
	require.Error(t, err)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "failed on 'test_color' validation", valErr.Fields()["category"])
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"a","quantity":3}`))
	var dst addRequest
	require.NoError(t, DecodeAndValidate(req, &dst))
	assert.Equal(t, 3, dst.Quantity)
}

func TestDecodeAndValidate_BadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	var dst addRequest
	err := DecodeAndValidate(req, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
