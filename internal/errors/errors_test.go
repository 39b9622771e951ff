package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	t.Parallel()

	err := Newf("device %q not found", "pond-01").
		Component("datastore").
		Category(CategoryNotFound).
		Context("device_id", "pond-01").
		Build()

	assert.Equal(t, `device "pond-01" not found`, err.Error())
	assert.Equal(t, "datastore", err.Component)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "pond-01", err.GetContext()["device_id"])
}

func TestCategoryDefaultsToGeneric(t *testing.T) {
	t.Parallel()

	err := Newf("something").Build()
	assert.Equal(t, CategoryGeneric, err.Category)
}

func TestCategorySurvivesWrapping(t *testing.T) {
	t.Parallel()

	inner := Newf("store gone").Category(CategoryTransient).Build()
	wrapped := fmt.Errorf("loading feed: %w", inner)

	assert.True(t, IsTransient(wrapped))

	var ae *AppError
	require.True(t, As(wrapped, &ae))
	assert.Equal(t, CategoryTransient, ae.Category)
}

func TestValidationField(t *testing.T) {
	t.Parallel()

	err := Newf("bad bounds").
		Category(CategoryValidation).
		Field("temp.min").
		Build()

	assert.True(t, IsValidation(err))
	assert.Equal(t, "temp.min", err.Field())

	plain := Newf("no field").Category(CategoryValidation).Build()
	assert.Empty(t, plain.Field())
}

func TestGetContextReturnsCopy(t *testing.T) {
	t.Parallel()

	err := Newf("x").Context("k", "v").Build()
	ctx := err.GetContext()
	ctx["k"] = "mutated"

	assert.Equal(t, "v", err.GetContext()["k"])
}
