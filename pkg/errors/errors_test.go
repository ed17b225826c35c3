package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := New(CodeCast, "row 2 failed").
		WithContext("row", 2).
		WithContext("field", "age")

	assert.Equal(t, "[E201] row 2 failed (field=age, row=2)", err.Error())
}

func TestError_Wrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(cause, CodeStorage, "describe failed")

	assert.Equal(t, "[E402] describe failed: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(nil, CodeStorage, "nothing"))
}

func TestError_IsFamily(t *testing.T) {
	tests := []struct {
		code     Code
		sentinel error
		want     bool
	}{
		{CodeCast, ErrCast, true},
		{CodeHeaderMismatch, ErrCast, true},
		{CodeDuplicate, ErrCast, true},
		{CodeRelation, ErrCast, false},
		{CodeRelation, ErrRelation, true},
		{CodeSchemaValidation, ErrSchemaValidation, true},
		{CodeStorage, ErrSource, true},
	}

	for _, tt := range tests {
		err := fmt.Errorf("wrapped: %w", New(tt.code, "x"))
		assert.Equal(t, tt.want, errors.Is(err, tt.sentinel), "code %s", tt.code)
	}
}

func TestError_IsExactCode(t *testing.T) {
	err := New(CodeDuplicate, "dup")
	assert.True(t, errors.Is(err, &Error{Code: CodeDuplicate}))
	assert.False(t, errors.Is(err, &Error{Code: CodeCast}))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeRelation, GetCode(fmt.Errorf("ctx: %w", New(CodeRelation, "fk"))))
	assert.Equal(t, CodeUnknown, GetCode(fmt.Errorf("plain")))
	assert.True(t, IsCode(New(CodeSource, "s"), CodeSource))
}

func TestHeaderMismatch(t *testing.T) {
	err := HeaderMismatch([]string{"id", "bad"}, []string{"id", "age"})
	assert.Contains(t, err.Error(), "match schema field names")
	assert.Equal(t, CodeHeaderMismatch, GetCode(err))
}

func TestMultiError(t *testing.T) {
	var m MultiError
	require.NoError(t, m.Combined())

	m.Add(nil)
	m.Add(fmt.Errorf("first"))
	assert.EqualError(t, m.Combined(), "first")

	m.Add(fmt.Errorf("second"))
	assert.True(t, m.HasErrors())
	assert.Contains(t, m.Combined().Error(), "2 errors occurred")

	m.Add(New(CodeRelation, "fk"))
	assert.True(t, errors.Is(m.Combined(), ErrRelation))
	assert.False(t, errors.Is(m.Combined(), ErrCast))
}
